package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
)

// OpenAIAgent implements Agent against any OpenAI-compatible chat completions
// endpoint. Gemini works through its OpenAI compatibility base URL.
type OpenAIAgent struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// OpenAIOption customizes an OpenAIAgent
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	timeout    time.Duration
	httpClient *http.Client
}

// WithTimeout sets the HTTP client timeout for each call.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(o *openAIOptions) { o.timeout = d }
}

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *openAIOptions) { o.httpClient = c }
}

// NewOpenAIAgent creates a new OpenAI agent. The SDK's own retries are
// disabled: one Invoke is one request.
func NewOpenAIAgent(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool, opts ...OpenAIOption) *OpenAIAgent {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := openAIOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIAgent{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry, logger *zap.Logger) {
	registry.Register("openai", func(cfg ProviderConfig) (Agent, error) {
		if cfg.APIKey == "" {
			return nil, ErrNoAPIKey
		}
		var opts []OpenAIOption
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		return NewOpenAIAgent(cfg.APIKey, cfg.BaseURL, cfg.Model, logger, cfg.DebugMode, opts...), nil
	})
}

// Model returns the configured model name.
func (a *OpenAIAgent) Model() string { return a.model }

// Invoke sends one chat completion request and returns the reply content.
// A reply without choices is returned as empty text, not as an error.
func (a *OpenAIAgent) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	requestID := ExtractRequestID(ctx)
	taskID := ExtractTaskID(ctx)
	if a.debugMode {
		a.logger.Debug("llm_api_request",
			zap.String("operation", "analyze_task"),
			zap.String("model", a.model),
			zap.Int("prompt_length", len(prompt.User)),
			zap.String("prompt_preview", SanitizePrompt(prompt.User, true)),
			zap.String("task_id", taskID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if a.debugMode {
			a.logger.Debug("llm_api_error",
				zap.String("operation", "analyze_task"),
				zap.String("model", a.model),
				zap.Error(err),
				zap.String("task_id", taskID),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", &AgentUnavailableError{Err: fmt.Errorf("chat completion: %w", apiErr)}
		}
		return "", &AgentUnavailableError{Err: fmt.Errorf("chat completion: %w", err)}
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if a.debugMode {
		a.logger.Debug("llm_api_response",
			zap.String("operation", "analyze_task"),
			zap.String("model", a.model),
			zap.Int("choices", len(resp.Choices)),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("task_id", taskID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}
