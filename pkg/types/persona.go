package types

import "strings"

// Persona is a named system prompt. A persona prompt may contain the literal
// placeholder {input}, which is substituted with the user prompt before the
// request is issued.
type Persona struct {
	Name         string `json:"name" yaml:"name"`
	SystemPrompt string `json:"systemPrompt" yaml:"systemPrompt"`
}

// Render returns the system prompt with {input} substituted. Prompts without
// the placeholder are returned unchanged.
func (p *Persona) Render(input string) string {
	if strings.Contains(p.SystemPrompt, "{input}") {
		return strings.ReplaceAll(p.SystemPrompt, "{input}", input)
	}
	return p.SystemPrompt
}

// AgentProfile binds a provider, a model and the credentials needed to reach
// it. Profiles come from configuration; the engine tracks which one is active.
type AgentProfile struct {
	Name          string `json:"name" yaml:"name"`
	Provider      string `json:"provider" yaml:"provider"`
	SelectedModel string `json:"selectedModel" yaml:"selectedModel"`
	APIKey        string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	EndpointURL   string `json:"endpointUrl,omitempty" yaml:"endpointUrl,omitempty"`
}
