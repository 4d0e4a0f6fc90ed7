package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"omaope/internal/retry"
)

// Kind enumerates quiz activity categories.
type Kind string

const (
	KindImagesIngested    Kind = "images.ingested"
	KindQuestionGenerated Kind = "question.generated"
	KindAnswerGraded      Kind = "answer.graded"
)

// Event describes one step of a quiz session.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	Text      string    `json:"text,omitempty"` // OCR text, user answer or evaluation depending on Kind
	At        time.Time `json:"at"`
}

type Handler func(context.Context, Event) error

// Publisher emits quiz activity.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers quiz activity until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

// PublishWithRetry attempts to publish with retries and exponential backoff.
func PublishWithRetry(ctx context.Context, p Publisher, event Event, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, nil, func(ctx context.Context) error {
		return p.Publish(ctx, event)
	})
}

// Noop drops every event. Used when no event bus is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
