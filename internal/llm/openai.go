package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"omaope/internal/retry"
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model    openai.ChatModel
	client   *openai.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

const (
	defaultChatTimeout = 30 * time.Second
	defaultBackoff     = 500 * time.Millisecond
)

// Options tunes the transport of an OpenAIClient. Zero values use defaults.
type Options struct {
	BaseURL  string
	Timeout  time.Duration // per attempt
	Attempts int           // total tries, including the first
	Backoff  time.Duration
}

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel, opts Options) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultChatTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are handled by retry.Do so that timeouts apply per attempt
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &OpenAIClient{
		model:    model,
		client:   &cli,
		timeout:  opts.Timeout,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}, nil
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(messages),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	var resp *openai.ChatCompletion
	err := retry.Do(ctx, c.attempts, c.backoff, isTransient, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.client.Chat.Completions.New(reqCtx, params)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		case RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		}
	}
	return out
}

// isTransient reports whether a failed completion call is worth retrying:
// rate limits, server errors and transport failures are. Client errors,
// undecodable bodies and caller cancellation are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return isTransport(err)
}

// isTransport reports whether err came from the connection rather than from
// a response the provider actually sent.
func isTransport(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &urlErr) ||
		errors.As(err, &netErr)
}

func classify(err error) error {
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr) && !isTransient(err):
		return fmt.Errorf("%w: %w", ErrRejected, err)
	case errors.As(err, &apiErr), isTransport(err), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
}
