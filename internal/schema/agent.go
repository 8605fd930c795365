package schema

// AgentDefinition describes one configured agent.
//
// SystemPrompt is either the literal persona text or the indirect form
// "markdown:<category>/<path>", resolved against the document store at
// prompt-assembly time.
type AgentDefinition struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	SystemPrompt  string  `yaml:"systemPrompt"`
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"maxTokens"`
	MaxIterations int     `yaml:"maxIterations"`
}

// AgentDefaults holds fallback values applied to agent definitions that
// leave the corresponding field unset.
type AgentDefaults struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"maxTokens"`
	MaxIterations int     `json:"maxIterations"`
}

// ApplyDefaults fills unset fields from d.
func (a *AgentDefinition) ApplyDefaults(d AgentDefaults) {
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.Provider == "" {
		a.Provider = d.Provider
	}
	if a.Model == "" {
		a.Model = d.Model
	}
	if a.Temperature == 0 {
		a.Temperature = d.Temperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = d.MaxTokens
	}
	if a.MaxIterations == 0 {
		a.MaxIterations = d.MaxIterations
	}
}
