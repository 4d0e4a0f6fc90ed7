package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "quiz."

// NATS publishes and consumes quiz events on subjects quiz.<kind>.
type NATS struct {
	log *slog.Logger
	nc  *nats.Conn
}

// NewNATS constructs a thin NATS-based event bus.
func NewNATS(log *slog.Logger, nc *nats.Conn) *NATS {
	return &NATS{log: log, nc: nc}
}

func (b *NATS) Publish(_ context.Context, event Event) error {
	if event.Kind == "" {
		return errors.New("event kind required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(subjectPrefix+string(event.Kind), body)
}

func (b *NATS) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := b.nc.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		b.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// Close drains pending messages and closes the connection.
func (b *NATS) Close() error {
	return b.nc.Drain()
}

func (b *NATS) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.log.Error("failed to decode event", "subject", msg.Subject, "err", err)
		return
	}
	if err := handler(ctx, event); err != nil {
		b.log.Error("event handler failed", "id", event.ID, "kind", event.Kind, "err", err)
	}
}
