package openrouter_client

const (
	// Base URL
	BaseURL = "https://openrouter.ai/api/v1"

	// API Endpoints
	ChatCompletionsEndpoint = "/chat/completions"

	// Models
	DefaultModel = "openai/gpt-3.5-turbo"

	// Headers
	AuthorizationHeader = "Authorization"
	ContentTypeHeader   = "Content-Type"
	ContentTypeJSON     = "application/json"
)
