package ai

import (
	"context"
	"errors"
	"time"
)

// Agent is the external language-model collaborator. Invoke makes exactly one
// call and returns the raw reply text. Any failure to obtain a reply is an
// *AgentUnavailableError.
type Agent interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
	// Model names the model replies come from, for the analysis record.
	Model() string
}

// ProviderConfig carries the settings a provider factory may use
type ProviderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	DebugMode bool
	// Timeout bounds each call; zero keeps the provider default.
	Timeout time.Duration
}

// ProviderFactory creates an agent for one provider
type ProviderFactory func(cfg ProviderConfig) (Agent, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, cfg ProviderConfig) (Agent, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(cfg)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}

// ErrNoAPIKey is the cause reported by DisabledAgent.
var ErrNoAPIKey = errors.New("no AI API key configured")

// DisabledAgent stands in when no provider is configured. Every call fails as
// unavailable so tasks can still be stored under the persist policy.
type DisabledAgent struct {
	Reason error
}

// Invoke always fails.
func (a DisabledAgent) Invoke(context.Context, Prompt) (string, error) {
	reason := a.Reason
	if reason == nil {
		reason = ErrNoAPIKey
	}
	return "", &AgentUnavailableError{Err: reason}
}

// Model returns an empty name.
func (DisabledAgent) Model() string { return "" }
