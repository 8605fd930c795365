package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// CronJobSummary is the tool-facing view of a scheduled job.
type CronJobSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// CronScheduler is the slice of the cron service the tool needs.
type CronScheduler interface {
	AddJob(name, message, kind string, everyMs int64, expr, tz string, atMs int64, deliver bool, channel, to string, deleteAfterRun bool) (string, error)
	ListJobs() []CronJobSummary
	RemoveJob(id string) bool
}

// CronTool lets the model schedule reminders and recurring tasks.
type CronTool struct {
	svc CronScheduler
}

func NewCronTool(svc CronScheduler) *CronTool {
	return &CronTool{svc: svc}
}

func (c *CronTool) Name() string { return "cron" }

func (c *CronTool) Description() string {
	return "Schedule tasks: add recurring or one-time jobs that send you a message later, list them, or remove them."
}

func (c *CronTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add", "list", "remove"],
				"description": "The operation"
			},
			"name": {
				"type": "string",
				"description": "Human-readable job name (add)"
			},
			"message": {
				"type": "string",
				"description": "Message injected into the agent when the job fires (add)"
			},
			"kind": {
				"type": "string",
				"enum": ["every", "cron", "at"],
				"description": "Schedule kind (add)"
			},
			"everyMs": {
				"type": "integer",
				"description": "Interval in milliseconds (kind=every)"
			},
			"expr": {
				"type": "string",
				"description": "Cron expression (kind=cron)"
			},
			"tz": {
				"type": "string",
				"description": "IANA timezone for cron expressions"
			},
			"atMs": {
				"type": "integer",
				"description": "Unix millisecond timestamp (kind=at)"
			},
			"deliver": {
				"type": "boolean",
				"description": "Deliver the agent's response to the originating channel"
			},
			"jobId": {
				"type": "string",
				"description": "Job id (remove)"
			}
		},
		"required": ["action"]
	}`)
}

func (c *CronTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	action, _ := params["action"].(string)
	switch action {
	case "add":
		return c.add(ctx, params)
	case "list":
		jobs := c.svc.ListJobs()
		if jobs == nil {
			jobs = []CronJobSummary{}
		}
		out, _ := json.Marshal(map[string]any{"jobs": jobs})
		return string(out), nil
	case "remove":
		id, _ := params["jobId"].(string)
		if id == "" {
			return "", missingParam("cron", "jobId")
		}
		if !c.svc.RemoveJob(id) {
			return "", &ToolError{
				Code:        CodeNotFound,
				Type:        "cron_job_not_found",
				Message:     fmt.Sprintf("no job with id %q", id),
				Recoverable: true,
				Suggestions: []string{"list the jobs to find the right id"},
			}
		}
		out, _ := json.Marshal(map[string]any{"success": true, "removed": id})
		return string(out), nil
	default:
		return "", &ToolError{
			Code:        CodeInvalidInput,
			Type:        "cron_unknown_action",
			Message:     fmt.Sprintf("unknown cron action %q", action),
			Recoverable: true,
			Suggestions: []string{"use one of: add, list, remove"},
		}
	}
}

func (c *CronTool) add(ctx context.Context, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	message, _ := params["message"].(string)
	kind, _ := params["kind"].(string)
	if name == "" {
		return "", missingParam("cron", "name")
	}
	if message == "" {
		return "", missingParam("cron", "message")
	}

	var everyMs, atMs int64
	if v, ok := params["everyMs"].(float64); ok {
		everyMs = int64(v)
	}
	if v, ok := params["atMs"].(float64); ok {
		atMs = int64(v)
	}
	expr, _ := params["expr"].(string)
	tz, _ := params["tz"].(string)
	deliver, _ := params["deliver"].(bool)

	tc := TurnCtx(ctx)
	id, err := c.svc.AddJob(name, message, kind, everyMs, expr, tz, atMs, deliver, tc.Channel, tc.ChatID, kind == "at")
	if err != nil {
		return "", &ToolError{
			Code:        CodeInvalidInput,
			Type:        "cron_add_failed",
			Message:     err.Error(),
			Recoverable: true,
			Suggestions: []string{"set everyMs for kind=every, expr for kind=cron, atMs for kind=at"},
		}
	}
	out, _ := json.Marshal(map[string]any{"success": true, "jobId": id})
	return string(out), nil
}
