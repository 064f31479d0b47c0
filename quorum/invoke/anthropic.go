package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/quorum-go/quorum"
)

// AnthropicInvoker implements quorum.Invoker using Anthropic's Claude API.
// It wraps the official anthropic-sdk-go client; the payload built for the
// (unit, role) pair is sent as a single user message and the raw text
// response is returned for the decode cascade to parse.
//
// AnthropicInvoker is safe for concurrent use after creation.
type AnthropicInvoker struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicInvoker creates an Anthropic-backed invoker with the given
// API key and model name. The API key can be obtained from
// https://console.anthropic.com/
func NewAnthropicInvoker(apiKey, model string) (*AnthropicInvoker, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicInvoker{
		client: &client,
		model:  model,
	}, nil
}

// Invoke sends the payload to Claude and returns the concatenated text
// blocks of the response.
func (a *AnthropicInvoker) Invoke(ctx context.Context, req quorum.InvokeRequest) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Payload)),
		},
	})
	if err != nil {
		return "", classifyAPIError("anthropic", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Name returns "anthropic".
func (a *AnthropicInvoker) Name() string {
	return "anthropic"
}

// classifyAPIError converts backend SDK errors into structured Errors so the
// dispatcher can tell transient failures from permanent ones.
func classifyAPIError(backend string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: "timeout", Message: "request cancelled or timed out", Retryable: true}
	}

	msg := err.Error()

	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api_key"):
		return &Error{Code: "invalid_api_key", Message: "API key is invalid or expired", Retryable: false}

	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"):
		return &Error{Code: "rate_limited", Message: "API rate limit exceeded", Retryable: true}

	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "billing"):
		return &Error{Code: "quota_exceeded", Message: "API quota exceeded", Retryable: false}

	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline"):
		return &Error{Code: "timeout", Message: "request timed out", Retryable: true}

	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "overloaded"):
		return &Error{Code: "server_error", Message: "backend temporarily unavailable", Retryable: true}
	}

	return &Error{
		Code:      "api_error",
		Message:   fmt.Sprintf("%s API error: %v", backend, err),
		Retryable: false,
	}
}
