// Package ai talks to an OpenAI-compatible chat-completions endpoint and implements the two
// model-backed pipeline steps: newsletter reorganization and weekly synthesis. Both run through
// a Chain that tries an ordered list of models until one yields a usable answer.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer returns the assistant content for a single model.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// StatusError is returned for non-2xx provider answers.
type StatusError struct {
	Model   string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model %s: status %d: %s", e.Model, e.Status, e.Message)
}

// Client is a Completer over HTTP. Timeouts come from the caller's context.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for baseURL (e.g. https://openrouter.ai/api/v1).
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

// Complete posts one chat completion in JSON mode and returns the assistant content with any
// markdown code fence removed.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:          model,
			Messages:       messages,
			Temperature:    0,
			ResponseFormat: &responseFormat{Type: "json_object"},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", errors.Wrapf(err, "chat completion with %s", model)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", &StatusError{Model: model, Status: resp.StatusCode(), Message: msg}
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", errors.Errorf("model %s: provider error: %s", model, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.Errorf("model %s: response has no choices", model)
	}
	content := StripFence(out.Choices[0].Message.Content)
	if content == "" {
		return "", errors.Errorf("model %s: empty completion", model)
	}
	return content, nil
}

// StripFence removes a surrounding ```json ... ``` fence some models add despite JSON mode.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeJSON is strict about trailing garbage so a truncated completion counts as malformed.
func decodeJSON(content string, v any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "malformed completion")
	}
	if dec.More() {
		return errors.New("malformed completion: trailing data")
	}
	return nil
}
