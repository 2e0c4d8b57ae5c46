package openrouter_client

import (
	"github.com/mcdev12/dsarena/go/clients"
)

type OpenRouterClient struct {
	*clients.BaseClient
	model string
}

func NewOpenRouterClient(apiKey, model string) *OpenRouterClient {
	return NewOpenRouterClientWithURL(BaseURL, apiKey, model)
}

// NewOpenRouterClientWithURL points the client at a different host, mostly for tests.
func NewOpenRouterClientWithURL(baseURL, apiKey, model string) *OpenRouterClient {
	if model == "" {
		model = DefaultModel
	}
	client := &OpenRouterClient{
		BaseClient: clients.NewBaseClient(baseURL),
		model:      model,
	}

	client.SetHeader(AuthorizationHeader, "Bearer "+apiKey)
	client.SetHeader(ContentTypeHeader, ContentTypeJSON)

	return client
}

func (c *OpenRouterClient) Model() string {
	return c.model
}
