package llm

import (
	"context"
	"errors"
)

// Roles understood by chat-completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoChoices means the provider answered but returned no usable completion.
	ErrNoChoices = errors.New("llm: no choices returned")
	// ErrUpstreamUnavailable means the provider could not be reached or kept failing.
	ErrUpstreamUnavailable = errors.New("llm: upstream unavailable")
	// ErrMalformedResponse means the provider answered with a body that could not be decoded.
	ErrMalformedResponse = errors.New("llm: malformed upstream response")
	// ErrRejected means the provider refused the request (bad key, bad
	// parameters); retrying will not help.
	ErrRejected = errors.New("llm: request rejected by provider")
)

// Message is one role/content turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	// Chat sends the ordered turns and returns the first completion verbatim.
	Chat(ctx context.Context, messages []Message, maxTokens int) (string, error)
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
