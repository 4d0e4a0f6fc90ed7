package quiz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"omaope/internal/events"
	"omaope/internal/llm"
	"omaope/internal/ocr"
	"omaope/internal/session"
)

type fakeMaterial struct {
	data []byte
	pdf  bool
	err  error
}

func (f fakeMaterial) Read() ([]byte, error) { return f.data, f.err }
func (f fakeMaterial) IsPDF() bool           { return f.pdf }

func (f fakeMaterial) ContentType() string {
	if f.pdf {
		return "application/pdf"
	}
	return "image/png"
}

type fixture struct {
	llm      *llm.MockClient
	ocr      *ocr.MockEngine
	pub      *events.MockPublisher
	sessions *session.Manager
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		llm:      new(llm.MockClient),
		ocr:      new(ocr.MockEngine),
		pub:      new(events.MockPublisher),
		sessions: session.NewManager(session.NewMemoryStore(time.Minute)),
	}
	f.svc = NewService(f.llm, f.ocr, f.sessions, f.pub, slog.New(slog.NewTextHandler(io.Discard, nil)), Settings{
		MaxImages:             10,
		Delimiter:             "Vastaus:",
		QuestionMaxTokens:     50,
		NextQuestionMaxTokens: 150,
		ChatMaxTokens:         50,
		GradeMaxTokens:        50,
		OCRLanguages:          []string{"fin"},
	})
	t.Cleanup(func() {
		f.llm.AssertExpectations(t)
		f.ocr.AssertExpectations(t)
		f.pub.AssertExpectations(t)
	})
	return f
}

func (f *fixture) expectOCR(image, text string) {
	res := ocr.Result{}
	if text != "" {
		res.Annotations = []ocr.Annotation{{Description: text}, {Description: "word"}}
	}
	f.ocr.On("Detect", mock.Anything, mock.MatchedBy(func(in ocr.Input) bool {
		return string(in.Image) == image && in.Format == "image/png"
	})).Return(res, nil).Once()
}

func (f *fixture) allowEvents() {
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
}

// seed puts the session into has_question with a known pair.
func (f *fixture) seed(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.sessions.Update(context.Background(), id, func(s *session.Session) error {
		s.Ingest("Paris is the capital of France.")
		return s.SetQuestion("Mikä on Ranskan pääkaupunki?", "Pariisi",
			llm.Assistant("Kysymys: Mikä on Ranskan pääkaupunki?"),
			llm.Assistant("Vastaus: Pariisi"))
	}))
}

func TestIngestScenario(t *testing.T) {
	f := newFixture(t)
	f.expectOCR("img1", "Paris is the capital ")
	f.expectOCR("img2", "of France.")
	f.llm.On("Chat", mock.Anything, []llm.Message{
		llm.User("Paris is the capital of France."),
		llm.System(questionPrompt),
	}, 50).Return("Mikä on Ranskan pääkaupunki?Vastaus:Pariisi", nil).Once()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Kind == events.KindImagesIngested && e.Text == "Paris is the capital of France."
	})).Return(nil).Once()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Kind == events.KindQuestionGenerated && e.Answer == "Pariisi"
	})).Return(nil).Once()

	qa, err := f.svc.Ingest(context.Background(), "s1", []Material{
		fakeMaterial{data: []byte("img1")},
		fakeMaterial{data: []byte("img2")},
	})
	require.NoError(t, err)
	assert.Equal(t, QA{Question: "Mikä on Ranskan pääkaupunki?", Answer: "Pariisi"}, qa)

	s, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StateHasQuestion, s.State)
	assert.Equal(t, "Paris is the capital of France.", s.RawText)
	assert.Equal(t, "Mikä on Ranskan pääkaupunki?", s.Question)
	assert.Equal(t, "Pariisi", s.Answer)
	assert.Equal(t, []llm.Message{
		llm.User("Paris is the capital of France."),
		llm.Assistant("Kysymys: Mikä on Ranskan pääkaupunki?"),
		llm.Assistant("Vastaus: Pariisi"),
	}, s.History)
}

func TestIngestImageWithoutText(t *testing.T) {
	f := newFixture(t)
	f.allowEvents()
	f.expectOCR("blank", "")
	f.expectOCR("page", "Text")
	f.llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return msgs[0].Content == "Text"
	}), 50).Return("Q? Vastaus: A", nil).Once()

	qa, err := f.svc.Ingest(context.Background(), "s1", []Material{
		fakeMaterial{data: []byte("blank")},
		fakeMaterial{data: []byte("page")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Q?", qa.Question)
	assert.Equal(t, "A", qa.Answer)
}

func TestIngestNoFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, ErrNoImages)
	f.ocr.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestTooManyFiles(t *testing.T) {
	f := newFixture(t)
	files := make([]Material, 11)
	for i := range files {
		files[i] = fakeMaterial{data: []byte("x")}
	}

	_, err := f.svc.Ingest(context.Background(), "s1", files)
	assert.ErrorIs(t, err, ErrTooManyImages)
}

func TestIngestMissingDelimiterKeepsState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1")
	before, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)

	f.expectOCR("img", "Other text")
	f.llm.On("Chat", mock.Anything, mock.Anything, 50).Return("Mikä on Saksan pääkaupunki?", nil).Once()

	_, err = f.svc.Ingest(context.Background(), "s1", []Material{fakeMaterial{data: []byte("img")}})
	assert.ErrorIs(t, err, ErrMalformedGeneration)

	after, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, before.Question, after.Question)
	assert.Equal(t, before.Answer, after.Answer)
	assert.Equal(t, before.RawText, after.RawText)
	assert.Equal(t, before.History, after.History)
}

func TestIngestOCRFailure(t *testing.T) {
	f := newFixture(t)
	f.ocr.On("Detect", mock.Anything, mock.Anything).Return(ocr.Result{}, ocr.ErrUpstreamUnavailable).Once()

	_, err := f.svc.Ingest(context.Background(), "s1", []Material{fakeMaterial{data: []byte("img")}})
	assert.ErrorIs(t, err, ocr.ErrUpstreamUnavailable)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestUnreadablePDF(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), "s1", []Material{fakeMaterial{data: []byte("%PDF-garbage"), pdf: true}})
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestExtractPDF(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "capital.pdf"))
	require.NoError(t, err)

	text, err := extractPDF(data)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", strings.TrimSpace(text))
	assert.True(t, strings.HasSuffix(text, "\n"), "every page ends with a newline")
}

func TestIngestPDFFollowedByImage(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "capital.pdf"))
	require.NoError(t, err)

	f := newFixture(t)
	f.allowEvents()
	f.expectOCR("img", "Pariisi on suuri.")
	f.llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		user := msgs[0].Content
		return msgs[0].Role == llm.RoleUser &&
			strings.HasPrefix(strings.TrimSpace(user), "Paris is the capital of France.") &&
			strings.HasSuffix(user, "\nPariisi on suuri.")
	}), 50).Return("Mikä on Ranskan pääkaupunki? Vastaus: Pariisi", nil).Once()

	qa, err := f.svc.Ingest(context.Background(), "s1", []Material{
		fakeMaterial{data: data, pdf: true},
		fakeMaterial{data: []byte("img")},
	})
	require.NoError(t, err)
	assert.Equal(t, QA{Question: "Mikä on Ranskan pääkaupunki?", Answer: "Pariisi"}, qa)

	s, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, s.RawText, "Paris is the capital of France.")
}

func TestIngestReadFailure(t *testing.T) {
	f := newFixture(t)
	readErr := errors.New("disk gone")

	_, err := f.svc.Ingest(context.Background(), "s1", []Material{fakeMaterial{err: readErr}})
	assert.ErrorIs(t, err, readErr)
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	f.llm.On("Chat", mock.Anything, []llm.Message{llm.User("T")}, 50).Return("R", nil).Once()

	reply, err := f.svc.Chat(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, "R", reply)
}

func TestChatBlank(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Chat(context.Background(), "  \t ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestChatNoChoices(t *testing.T) {
	f := newFixture(t)
	f.llm.On("Chat", mock.Anything, mock.Anything, 50).Return("", llm.ErrNoChoices).Once()

	_, err := f.svc.Chat(context.Background(), "T")
	assert.ErrorIs(t, err, llm.ErrNoChoices)
}

func TestCheckAnswerUsesStoredPair(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1")
	f.llm.On("Chat", mock.Anything, []llm.Message{
		llm.System(graderPersona),
		llm.Assistant("Kysymys: Mikä on Ranskan pääkaupunki?"),
		llm.Assistant("Oikea vastaus: Pariisi"),
		llm.User("Opiskelijan vastaus: Lontoo"),
		llm.System(gradingPrompt),
	}, 50).Return("  2/10. Melkein, mutta oikea vastaus on Pariisi!  ", nil).Once()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Kind == events.KindAnswerGraded && e.Question == "Mikä on Ranskan pääkaupunki?"
	})).Return(nil).Once()

	evaluation, err := f.svc.CheckAnswer(context.Background(), "s1", "Lontoo")
	require.NoError(t, err)
	assert.Equal(t, "2/10. Melkein, mutta oikea vastaus on Pariisi!", evaluation)

	s, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StateAnswered, s.State)
	assert.Len(t, s.History, 3, "grading does not extend the conversation")
}

func TestCheckAnswerWithoutQuestion(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckAnswer(context.Background(), "fresh", "Pariisi")
	assert.ErrorIs(t, err, session.ErrNoActiveQuestion)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckAnswerUpstreamFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1")
	f.llm.On("Chat", mock.Anything, mock.Anything, 50).Return("", llm.ErrUpstreamUnavailable).Once()

	_, err := f.svc.CheckAnswer(context.Background(), "s1", "Pariisi")
	assert.ErrorIs(t, err, llm.ErrUpstreamUnavailable)

	s, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StateHasQuestion, s.State)
}

func TestNextQuestionAppendsHistory(t *testing.T) {
	f := newFixture(t)
	f.allowEvents()
	f.seed(t, "s1")

	replies := []string{
		"Mikä joki virtaa Pariisin läpi? Vastaus: Seine",
		"Mikä on Ranskan virallinen kieli?\nVastaus: ranska",
	}
	prevLen := 3
	for i, reply := range replies {
		f.llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
			last := msgs[len(msgs)-1]
			return len(msgs) == prevLen+1 &&
				last.Role == llm.RoleSystem &&
				last.Content == "Luo toinen yksinkertainen ja selkeä kysymys ja sen vastaus yllä olevasta tekstistä suomeksi: Paris is the capital of France.. Kysy vain yksi asia kerrallaan."
		}), 150).Return(reply, nil).Once()

		qa, err := f.svc.NextQuestion(context.Background(), "s1")
		require.NoError(t, err, "call %d", i)

		s, err := f.sessions.Get(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, prevLen+2, len(s.History))
		assert.Equal(t, "Paris is the capital of France.", s.RawText)
		assert.Equal(t, qa.Question, s.Question)
		assert.Equal(t, qa.Answer, s.Answer)
		prevLen = len(s.History)
	}
}

func TestNextQuestionMissingDelimiter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1")
	f.llm.On("Chat", mock.Anything, mock.Anything, 150).Return("Vain kysymys?", nil).Once()

	_, err := f.svc.NextQuestion(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrMalformedGeneration)

	s, err := f.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Mikä on Ranskan pääkaupunki?", s.Question)
	assert.Equal(t, "Pariisi", s.Answer)
	assert.Len(t, s.History, 3)
}

func TestNextQuestionWithoutStudyText(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.NextQuestion(context.Background(), "fresh")
	assert.ErrorIs(t, err, session.ErrNoStudyText)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s1")
	f.llm.On("Chat", mock.Anything, mock.Anything, 50).Return("9/10", nil).Once()
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down")).Once()

	evaluation, err := f.svc.CheckAnswer(context.Background(), "s1", "Pariisi")
	require.NoError(t, err)
	assert.Equal(t, "9/10", evaluation)
}

func TestSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "alice")

	_, err := f.svc.CheckAnswer(context.Background(), "bob", "Pariisi")
	assert.ErrorIs(t, err, session.ErrNoActiveQuestion)
}
