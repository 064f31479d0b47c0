package invoke

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/quorum-go/quorum"
)

// OpenAIInvoker implements quorum.Invoker using OpenAI's chat completion
// API. The payload built for the (unit, role) pair is sent as a single user
// message and the raw message content is returned for the decode cascade to
// parse.
//
// OpenAIInvoker is safe for concurrent use after creation.
type OpenAIInvoker struct {
	client *openai.Client
	model  string
}

// NewOpenAIInvoker creates an OpenAI-backed invoker.
//
// Parameters:
//   - apiKey: OpenAI API key
//   - model: Model to use (e.g., "gpt-4o", "gpt-4-turbo")
//
// Returns error if apiKey or model is empty.
func NewOpenAIInvoker(apiKey, model string) (*OpenAIInvoker, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIInvoker{
		client: &client,
		model:  model,
	}, nil
}

// Invoke sends the payload as a chat completion request and returns the
// first choice's content.
func (p *OpenAIInvoker) Invoke(ctx context.Context, req quorum.InvokeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(req.Payload),
					},
				},
			},
		},
	})
	if err != nil {
		return "", classifyAPIError("openai", err)
	}

	if len(completion.Choices) == 0 {
		return "", &Error{Code: "api_error", Message: "empty completion response", Retryable: true}
	}
	return completion.Choices[0].Message.Content, nil
}

// Name returns "openai".
func (p *OpenAIInvoker) Name() string {
	return "openai"
}
