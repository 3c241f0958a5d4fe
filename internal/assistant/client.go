package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"foodshare-backend/config"
	"foodshare-backend/pkg/apperr"
)

// Message is one turn of a chat conversation, OpenAI-compatible
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content" binding:"required"`
}

// Client forwards conversations to the chat-completion provider with the
// configured system prompt prepended.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type httpClient struct {
	cfg  config.ChatConfig
	http *http.Client
}

func NewClient(cfg config.ChatConfig) Client {
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *httpClient) Complete(ctx context.Context, messages []Message) (string, error) {
	conversation := make([]Message, 0, len(messages)+1)
	if c.cfg.SystemPrompt != "" {
		conversation = append(conversation, Message{Role: "system", Content: c.cfg.SystemPrompt})
	}
	conversation = append(conversation, messages...)

	payload, err := json.Marshal(completionRequest{Model: c.cfg.Model, Messages: conversation})
	if err != nil {
		return "", apperr.Upstream("assistant.Complete", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Upstream("assistant.Complete", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Upstream("assistant.Complete", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Upstream("assistant.Complete", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Upstream("assistant.Complete", fmt.Errorf("provider returned %d", resp.StatusCode))
	}

	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", apperr.Upstream("assistant.Complete", err)
	}
	if completion.Error != nil {
		return "", apperr.Upstream("assistant.Complete", fmt.Errorf("provider error: %s", completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", apperr.Upstream("assistant.Complete", fmt.Errorf("provider returned no choices"))
	}
	return completion.Choices[0].Message.Content, nil
}
