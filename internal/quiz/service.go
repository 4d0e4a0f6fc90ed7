// Package quiz implements the tutor's backend operations: turning uploaded
// study material into questions, forwarding free chat, grading answers and
// advancing to the next question.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"omaope/internal/events"
	"omaope/internal/llm"
	"omaope/internal/ocr"
	"omaope/internal/session"
)

var (
	ErrNoImages            = errors.New("no files uploaded")
	ErrTooManyImages       = errors.New("too many files uploaded")
	ErrEmptyInput          = errors.New("message is empty")
	ErrMalformedGeneration = errors.New("model could not generate a valid question; please provide a clearer text")
	ErrUnreadableDocument  = errors.New("uploaded document could not be read")
)

// Settings are the tunables of the quiz flow.
type Settings struct {
	MaxImages             int
	Delimiter             string
	QuestionMaxTokens     int
	NextQuestionMaxTokens int
	ChatMaxTokens         int
	GradeMaxTokens        int
	OCRLanguages          []string
	EventAttempts         int
	EventBackoff          time.Duration
}

// QA is a generated question with its expected answer.
type QA struct {
	Question string
	Answer   string
}

// Service sequences OCR and LLM calls against per-session state.
type Service struct {
	llm      llm.Client
	ocr      ocr.Engine
	sessions *session.Manager
	events   events.Publisher
	log      *slog.Logger
	settings Settings
}

// NewService wires the quiz flow. A nil publisher disables events.
func NewService(llmClient llm.Client, engine ocr.Engine, sessions *session.Manager, pub events.Publisher, log *slog.Logger, settings Settings) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	if settings.Delimiter == "" {
		settings.Delimiter = "Vastaus:"
	}
	if settings.MaxImages <= 0 {
		settings.MaxImages = 10
	}
	return &Service{
		llm:      llmClient,
		ocr:      engine,
		sessions: sessions,
		events:   pub,
		log:      log,
		settings: settings,
	}
}

// Ingest extracts text from the uploaded files, starts a new conversation
// from it and generates the first question. Nothing is stored if any step
// fails.
func (s *Service) Ingest(ctx context.Context, sessionID string, files []Material) (QA, error) {
	if len(files) == 0 {
		return QA{}, ErrNoImages
	}
	if len(files) > s.settings.MaxImages {
		return QA{}, fmt.Errorf("%w (max %d)", ErrTooManyImages, s.settings.MaxImages)
	}

	texts := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			text, err := s.extractText(gctx, i, f)
			texts[i] = text
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return QA{}, err
	}
	raw := strings.Join(texts, "")
	s.log.Debug("extracted study text", "session_id", sessionID, "files", len(files), "chars", len(raw))

	var qa QA
	err := s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		sess.Ingest(raw)
		reply, err := s.llm.Chat(ctx, withInstruction(sess.History, llm.System(questionPrompt)), s.settings.QuestionMaxTokens)
		if err != nil {
			return err
		}
		qa, err = s.storeQuestion(sess, reply)
		return err
	})
	if err != nil {
		return QA{}, err
	}

	s.log.Info("study material ingested", "session_id", sessionID, "files", len(files))
	s.publish(ctx, events.Event{Kind: events.KindImagesIngested, SessionID: sessionID, Text: raw})
	s.publish(ctx, events.Event{Kind: events.KindQuestionGenerated, SessionID: sessionID, Question: qa.Question, Answer: qa.Answer})
	return qa, nil
}

// Chat forwards text as the only turn of a fresh conversation and returns the
// reply verbatim. Session history is neither read nor written.
func (s *Service) Chat(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	return s.llm.Chat(ctx, []llm.Message{llm.User(text)}, s.settings.ChatMaxTokens)
}

// CheckAnswer grades userAnswer against the session's current question and
// stored answer and returns the model's evaluation text.
func (s *Service) CheckAnswer(ctx context.Context, sessionID, userAnswer string) (string, error) {
	if strings.TrimSpace(userAnswer) == "" {
		return "", ErrEmptyInput
	}
	var evaluation, question string
	err := s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		if !sess.CanCheck() {
			return session.ErrNoActiveQuestion
		}
		question = sess.Question
		reply, err := s.llm.Chat(ctx, GradingPrompt(sess.Question, sess.Answer, userAnswer), s.settings.GradeMaxTokens)
		if err != nil {
			return err
		}
		evaluation = strings.TrimSpace(reply)
		return sess.MarkGraded()
	})
	if err != nil {
		return "", err
	}

	s.log.Info("answer graded", "session_id", sessionID)
	s.publish(ctx, events.Event{Kind: events.KindAnswerGraded, SessionID: sessionID, Question: question, Text: evaluation})
	return evaluation, nil
}

// NextQuestion asks for another question about the ingested text, keeping the
// accumulated conversation as context.
func (s *Service) NextQuestion(ctx context.Context, sessionID string) (QA, error) {
	var qa QA
	err := s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		if !sess.CanAdvance() {
			return session.ErrNoStudyText
		}
		instruction := llm.System(fmt.Sprintf(nextQuestionPrompt, sess.RawText))
		reply, err := s.llm.Chat(ctx, withInstruction(sess.History, instruction), s.settings.NextQuestionMaxTokens)
		if err != nil {
			return err
		}
		qa, err = s.storeQuestion(sess, reply)
		return err
	})
	if err != nil {
		return QA{}, err
	}

	s.log.Info("next question generated", "session_id", sessionID)
	s.publish(ctx, events.Event{Kind: events.KindQuestionGenerated, SessionID: sessionID, Question: qa.Question, Answer: qa.Answer})
	return qa, nil
}

// GradingPrompt builds the grader conversation. Only the stored question and
// answer are used as reference.
func GradingPrompt(question, correctAnswer, userAnswer string) []llm.Message {
	return []llm.Message{
		llm.System(graderPersona),
		llm.Assistant(questionLabel + question),
		llm.Assistant(correctLabel + correctAnswer),
		llm.User(studentLabel + userAnswer),
		llm.System(gradingPrompt),
	}
}

func (s *Service) storeQuestion(sess *session.Session, reply string) (QA, error) {
	question, answer, ok := SplitQuestion(strings.TrimSpace(reply), s.settings.Delimiter)
	if !ok {
		s.log.Warn("generated text has no question/answer split", "session_id", sess.ID, "delimiter", s.settings.Delimiter)
		return QA{}, ErrMalformedGeneration
	}
	err := sess.SetQuestion(question, answer,
		llm.Assistant(questionLabel+question),
		llm.Assistant(s.settings.Delimiter+" "+answer),
	)
	if err != nil {
		return QA{}, err
	}
	return QA{Question: question, Answer: answer}, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	event.ID = uuid.New()
	event.At = time.Now().UTC()
	if err := events.PublishWithRetry(ctx, s.events, event, s.settings.EventAttempts, s.settings.EventBackoff); err != nil {
		s.log.Warn("failed to publish quiz event", "kind", event.Kind, "session_id", event.SessionID, "err", err)
	}
}

// withInstruction returns history plus one trailing turn without touching
// history's backing array.
func withInstruction(history []llm.Message, instruction llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, instruction)
}
