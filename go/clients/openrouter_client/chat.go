package openrouter_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyCompletion is returned when the API answers without any choices.
var ErrEmptyCompletion = errors.New("completion has no choices")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends the messages to the chat completions endpoint and returns the first reply.
func (c *OpenRouterClient) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody, err := json.Marshal(ChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	body, err := c.Post(ctx, ChatCompletionsEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to call chat completions: %w", err)
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	if response.Error != nil {
		return "", fmt.Errorf("API returned error %d: %s", response.Error.Code, response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return response.Choices[0].Message.Content, nil
}
