package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"omaope/internal/app"
	"omaope/internal/events"
	"omaope/internal/httputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.BuildBase()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	if deps.Bus == nil {
		deps.Log.Error("EVENTS_URL is required for the recorder")
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Warn("failed to release dependencies", "err", err)
		}
	}()
	deps.Log.Info("recorder starting")

	rec := newRecorder(deps.Log)
	g, ctx := errgroup.WithContext(ctx)

	// Run event subscriber
	g.Go(func() error {
		return rec.run(ctx, deps.Bus)
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps, "recorder", deps.Config.RecorderPort)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("recorder stopped", "err", err)
	}
}

// sessionStats counts activity of one session since the recorder started.
type sessionStats struct {
	Ingested  int
	Questions int
	Graded    int
}

// recorder writes every quiz event as one structured transcript line.
type recorder struct {
	log *slog.Logger

	mu    sync.Mutex
	stats map[string]*sessionStats
}

func newRecorder(log *slog.Logger) *recorder {
	return &recorder{log: log, stats: make(map[string]*sessionStats)}
}

// run records events from sub until ctx ends.
func (r *recorder) run(ctx context.Context, sub events.Subscriber) error {
	r.log.Info("recording quiz events")
	if err := sub.Subscribe(ctx, r.handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (r *recorder) handle(_ context.Context, event events.Event) error {
	if event.SessionID == "" {
		return errors.New("event without session id")
	}

	r.mu.Lock()
	st, ok := r.stats[event.SessionID]
	if !ok {
		st = &sessionStats{}
		r.stats[event.SessionID] = st
	}
	switch event.Kind {
	case events.KindImagesIngested:
		st.Ingested++
	case events.KindQuestionGenerated:
		st.Questions++
	case events.KindAnswerGraded:
		st.Graded++
	default:
		r.mu.Unlock()
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
	snapshot := *st
	r.mu.Unlock()

	log := r.log.With("session_id", event.SessionID, "event_id", event.ID, "at", event.At)
	switch event.Kind {
	case events.KindImagesIngested:
		log.Info("study text ingested", "chars", len([]rune(event.Text)), "uploads", snapshot.Ingested)
	case events.KindQuestionGenerated:
		log.Info("question asked", "question", event.Question, "answer", event.Answer, "questions", snapshot.Questions)
	case events.KindAnswerGraded:
		log.Info("answer graded", "question", event.Question, "evaluation", event.Text, "graded", snapshot.Graded)
	}
	return nil
}

func (r *recorder) snapshot(sessionID string) sessionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[sessionID]; ok {
		return *st
	}
	return sessionStats{}
}
