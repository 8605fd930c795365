package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/silverkite/silverkite/internal/store"
)

// ModelDef maps a logical model name the LLM can query to a collection and
// a fixed scope filter merged into every query.
type ModelDef struct {
	Collection string
	Scope      store.Document
}

// ModelRegistry names the logical models exposed through the query tools.
type ModelRegistry map[string]ModelDef

// DefaultModels exposes the memory-backed document models.
func DefaultModels() ModelRegistry {
	return ModelRegistry{
		"memory_file": {
			Collection: "documents",
			Scope:      store.Document{"category": "agents_memory"},
		},
		"rule": {
			Collection: "documents",
			Scope:      store.Document{"category": "rules"},
		},
		"markdown_doc": {
			Collection: "documents",
			Scope:      store.Document{"category": "markdown"},
		},
	}
}

func (r ModelRegistry) names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func modelNotFound(r ModelRegistry, name string) *ToolError {
	return &ToolError{
		Code:        CodeNotFound,
		Type:        "model_not_found",
		Message:     fmt.Sprintf("no model named %q", name),
		Recoverable: true,
		Suggestions: []string{"call get_system_stats to see the available models"},
		Context:     map[string]any{"available": r.names()},
	}
}

// QueryDatabaseTool runs filtered reads against a logical model.
type QueryDatabaseTool struct {
	docs   *store.Store
	models ModelRegistry
}

func NewQueryDatabaseTool(docs *store.Store, models ModelRegistry) *QueryDatabaseTool {
	return &QueryDatabaseTool{docs: docs, models: models}
}

func (q *QueryDatabaseTool) Name() string { return "query_database" }

func (q *QueryDatabaseTool) Description() string {
	return "Query documents from a named data model with an equality filter. Returns at most `limit` documents (default 5)."
}

func (q *QueryDatabaseTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"model": {
				"type": "string",
				"description": "The data model to query, e.g. memory_file"
			},
			"filter": {
				"type": "object",
				"description": "Field equality filter, e.g. {\"status\": \"active\"}"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum documents to return (default 5)"
			}
		},
		"required": ["model"]
	}`)
}

func (q *QueryDatabaseTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	name, _ := params["model"].(string)
	if name == "" {
		return "", missingParam("query_database", "model")
	}
	model, ok := q.models[name]
	if !ok {
		return "", modelNotFound(q.models, name)
	}

	filter, err := objectParam(params, "filter")
	if err != nil {
		return "", err
	}
	merged := store.Document{}
	for k, v := range model.Scope {
		merged[k] = v
	}
	for k, v := range filter {
		merged[k] = v
	}

	limit := 5
	if raw, ok := params["limit"]; ok {
		if f, ok := raw.(float64); ok && f > 0 {
			limit = int(f)
		}
	}

	docs, err := q.docs.Find(ctx, model.Collection, merged, limit)
	if err != nil {
		return "", queryFailure(err)
	}
	if docs == nil {
		docs = []store.Document{}
	}
	out, _ := json.Marshal(map[string]any{"model": name, "count": len(docs), "documents": docs})
	return string(out), nil
}

// SystemStatsTool reports per-model document counts.
type SystemStatsTool struct {
	docs   *store.Store
	models ModelRegistry
}

func NewSystemStatsTool(docs *store.Store, models ModelRegistry) *SystemStatsTool {
	return &SystemStatsTool{docs: docs, models: models}
}

func (s *SystemStatsTool) Name() string { return "get_system_stats" }

func (s *SystemStatsTool) Description() string {
	return "Report the available data models and how many documents each holds."
}

func (s *SystemStatsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (s *SystemStatsTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	stats := map[string]int{}
	for _, name := range s.models.names() {
		model := s.models[name]
		n, err := s.docs.Count(ctx, model.Collection, model.Scope)
		if err != nil {
			return "", queryFailure(err)
		}
		stats[name] = n
	}
	out, _ := json.Marshal(map[string]any{"models": stats})
	return string(out), nil
}

// RawDBQueryTool exposes low-level database commands for inspection.
type RawDBQueryTool struct {
	docs *store.Store
}

func NewRawDBQueryTool(docs *store.Store) *RawDBQueryTool {
	return &RawDBQueryTool{docs: docs}
}

func (r *RawDBQueryTool) Name() string { return "raw_db_query" }

func (r *RawDBQueryTool) Description() string {
	return "Run a raw database operation: listDatabases, listCollections, countDocuments, findOne, aggregate or adminCommand."
}

func (r *RawDBQueryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["listDatabases", "listCollections", "countDocuments", "findOne", "aggregate", "adminCommand"],
				"description": "The database operation"
			},
			"collection": {
				"type": "string",
				"description": "Target collection (countDocuments, findOne, aggregate)"
			},
			"filter": {
				"type": "object",
				"description": "Equality filter (countDocuments, findOne)"
			},
			"pipeline": {
				"type": "array",
				"description": "Aggregation pipeline stages (aggregate)"
			},
			"command": {
				"type": "object",
				"description": "Admin command document (adminCommand)"
			}
		},
		"required": ["operation"]
	}`)
}

func (r *RawDBQueryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	op, _ := params["operation"].(string)
	switch op {
	case "listDatabases":
		out, _ := json.Marshal(map[string]any{"databases": []string{r.docs.Name()}})
		return string(out), nil

	case "listCollections":
		names, err := r.docs.ListCollections(ctx)
		if err != nil {
			return "", queryFailure(err)
		}
		if names == nil {
			names = []string{}
		}
		out, _ := json.Marshal(map[string]any{"collections": names})
		return string(out), nil

	case "countDocuments":
		coll, filter, err := r.collectionAndFilter(params)
		if err != nil {
			return "", err
		}
		n, err := r.docs.Count(ctx, coll, filter)
		if err != nil {
			return "", queryFailure(err)
		}
		out, _ := json.Marshal(map[string]any{"count": n})
		return string(out), nil

	case "findOne":
		coll, filter, err := r.collectionAndFilter(params)
		if err != nil {
			return "", err
		}
		doc, err := r.docs.FindOne(ctx, coll, filter)
		if err != nil {
			// findOne on no match returns null, matching driver behaviour.
			out, _ := json.Marshal(map[string]any{"document": nil})
			return string(out), nil
		}
		out, _ := json.Marshal(map[string]any{"document": doc})
		return string(out), nil

	case "aggregate":
		coll, _ := params["collection"].(string)
		if coll == "" {
			return "", missingParam("raw_db_query", "collection")
		}
		pipeline, err := pipelineParam(params, "pipeline")
		if err != nil {
			return "", err
		}
		docs, err := r.docs.Aggregate(ctx, coll, pipeline)
		if err != nil {
			return "", queryFailure(err)
		}
		if docs == nil {
			docs = []store.Document{}
		}
		out, _ := json.Marshal(map[string]any{"results": docs})
		return string(out), nil

	case "adminCommand":
		cmd, err := objectParam(params, "command")
		if err != nil {
			return "", err
		}
		if len(cmd) == 0 {
			return "", missingParam("raw_db_query", "command")
		}
		res, err := r.docs.AdminCommand(ctx, store.Document(cmd))
		if err != nil {
			return "", queryFailure(err)
		}
		out, _ := json.Marshal(res)
		return string(out), nil

	default:
		return "", &ToolError{
			Code:        CodeInvalidInput,
			Type:        "query_unknown_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			Recoverable: true,
			Suggestions: []string{"use one of: listDatabases, listCollections, countDocuments, findOne, aggregate, adminCommand"},
		}
	}
}

func (r *RawDBQueryTool) collectionAndFilter(params map[string]any) (string, store.Document, error) {
	coll, _ := params["collection"].(string)
	if coll == "" {
		return "", nil, missingParam("raw_db_query", "collection")
	}
	filter, err := objectParam(params, "filter")
	if err != nil {
		return "", nil, err
	}
	return coll, store.Document(filter), nil
}

// objectParam returns params[name] as a map, decoding a JSON string form if
// the backend double-encoded it. A missing parameter yields an empty map.
func objectParam(params map[string]any, name string) (map[string]any, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, &ToolError{
				Code:        CodeInvalidInput,
				Type:        "query_execution_failed",
				Message:     fmt.Sprintf("parameter %q is not valid JSON: %v", name, err),
				Recoverable: true,
				Suggestions: []string{fmt.Sprintf("pass %q as a JSON object", name)},
			}
		}
		return decoded, nil
	default:
		return nil, &ToolError{
			Code:        CodeInvalidInput,
			Type:        "query_execution_failed",
			Message:     fmt.Sprintf("parameter %q must be an object", name),
			Recoverable: true,
			Suggestions: []string{fmt.Sprintf("pass %q as a JSON object", name)},
		}
	}
}

// pipelineParam returns params[name] as a list of stage documents, decoding
// a JSON string form if necessary.
func pipelineParam(params map[string]any, name string) ([]store.Document, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return nil, missingParam("raw_db_query", name)
	}

	var stages []any
	switch v := raw.(type) {
	case []any:
		stages = v
	case string:
		if err := json.Unmarshal([]byte(v), &stages); err != nil {
			return nil, &ToolError{
				Code:        CodeInvalidInput,
				Type:        "query_execution_failed",
				Message:     fmt.Sprintf("parameter %q is not valid JSON: %v", name, err),
				Recoverable: true,
				Suggestions: []string{fmt.Sprintf("pass %q as a JSON array of stages", name)},
			}
		}
	default:
		return nil, &ToolError{
			Code:        CodeInvalidInput,
			Type:        "query_execution_failed",
			Message:     fmt.Sprintf("parameter %q must be an array", name),
			Recoverable: true,
			Suggestions: []string{fmt.Sprintf("pass %q as a JSON array of stages", name)},
		}
	}

	out := make([]store.Document, 0, len(stages))
	for i, s := range stages {
		stage, ok := s.(map[string]any)
		if !ok {
			return nil, &ToolError{
				Code:        CodeInvalidInput,
				Type:        "query_execution_failed",
				Message:     fmt.Sprintf("pipeline stage %d is not an object", i),
				Recoverable: true,
				Suggestions: []string{"each pipeline stage must be a JSON object"},
			}
		}
		out = append(out, store.Document(stage))
	}
	return out, nil
}

func queryFailure(err error) *ToolError {
	return &ToolError{
		Code:        CodeInternalError,
		Type:        "query_execution_failed",
		Message:     err.Error(),
		Recoverable: true,
		Suggestions: []string{"retry the query", "simplify the filter"},
	}
}
