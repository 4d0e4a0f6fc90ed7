// Package session keeps per-client quiz state. Each client gets its own
// Session, mutated under an exclusive per-id lock by Manager.
package session

import (
	"errors"
	"time"

	"omaope/internal/llm"
)

// State is the position of a session in the quiz flow:
// idle → has_text → has_question → answered → has_question ...
type State string

const (
	StateIdle        State = "idle"
	StateHasText     State = "has_text"
	StateHasQuestion State = "has_question"
	StateAnswered    State = "answered"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrNoActiveQuestion = errors.New("no active question; upload study material first")
	ErrNoStudyText      = errors.New("no study material uploaded yet")
)

// Session is the quiz state of one client.
type Session struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	RawText   string        `json:"raw_text"`
	History   []llm.Message `json:"history"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// New returns an idle session.
func New(id string) *Session {
	return &Session{ID: id, State: StateIdle}
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]llm.Message(nil), s.History...)
	return &c
}

// Ingest replaces the study text and restarts the conversation from it.
func (s *Session) Ingest(text string) {
	s.RawText = text
	s.History = []llm.Message{llm.User(text)}
	s.Question = ""
	s.Answer = ""
	s.State = StateHasText
}

// SetQuestion stores a freshly generated question/answer pair and appends
// the given turns to the history.
func (s *Session) SetQuestion(question, answer string, turns ...llm.Message) error {
	if s.State == StateIdle {
		return ErrNoStudyText
	}
	s.Question = question
	s.Answer = answer
	s.History = append(s.History, turns...)
	s.State = StateHasQuestion
	return nil
}

// MarkGraded records that the current question was answered.
func (s *Session) MarkGraded() error {
	if !s.CanCheck() {
		return ErrNoActiveQuestion
	}
	s.State = StateAnswered
	return nil
}

// CanCheck reports whether there is a question to grade an answer against.
func (s *Session) CanCheck() bool {
	return s.State == StateHasQuestion || s.State == StateAnswered
}

// CanAdvance reports whether a next question can be generated.
func (s *Session) CanAdvance() bool {
	return s.State != StateIdle
}
