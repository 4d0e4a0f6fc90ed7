// Package client is a terminal counterpart of the browser chat client. It
// talks to the quiz server over HTTP and renders every outcome as a message
// in one of the two panes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"omaope/internal/api"
)

const (
	userLabel  = "Sinä: "
	chatLabel  = "ChatGPT: "
	tutorLabel = "OmaOpe: "

	noFilesWarning = "Valitse kuvia ensin."
)

var ErrNoFiles = errors.New("no files selected")

// Renderer displays chat messages and warnings.
type Renderer interface {
	AppendMessage(msg api.ChatMessage)
	Warn(text string)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. It should carry a cookie
// jar so the session survives between calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for failure details.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client drives the quiz API and renders results.
type Client struct {
	baseURL  string
	http     *http.Client
	renderer Renderer
	log      *slog.Logger

	mu       sync.Mutex
	question string
	answer   string
}

// New builds a client for the server at baseURL.
func New(baseURL string, renderer Renderer, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Jar: jar, Timeout: 2 * time.Minute},
		renderer: renderer,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Current returns the last question and answer received from the server.
func (c *Client) Current() (question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question, c.answer
}

// SubmitImages uploads the files at paths and shows the generated question.
func (c *Client) SubmitImages(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		c.renderer.Warn(noFilesWarning)
		return ErrNoFiles
	}
	if len(paths) > api.MaxImages {
		c.renderer.Warn(fmt.Sprintf("Voit lähettää enintään %d kuvaa kerrallaan.", api.MaxImages))
		return fmt.Errorf("too many files: %d (max %d)", len(paths), api.MaxImages)
	}

	body, contentType, err := multipartFiles(paths)
	if err != nil {
		return c.fail(api.PaneQuizChat, tutorLabel, "read files", err)
	}
	var qa api.QuestionResponse
	if err := c.post(ctx, api.RouteUploadImages, contentType, body, &qa); err != nil {
		return c.fail(api.PaneQuizChat, tutorLabel, "upload images", err)
	}
	c.showQuestion(qa)
	return nil
}

// SubmitChatMessage echoes text, forwards it to the chat endpoint and shows
// the reply. Blank input is ignored.
func (c *Client) SubmitChatMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	c.AppendMessage(userLabel+text, api.SenderUser, api.PaneMainChat)

	var resp api.ChatResponse
	if err := c.postJSON(ctx, api.RouteChat, api.ChatRequest{Question: text}, &resp); err != nil {
		return c.fail(api.PaneMainChat, chatLabel, "chat", err)
	}
	c.AppendMessage(chatLabel+resp.Reply, api.SenderBot, api.PaneMainChat)
	return nil
}

// SubmitAnswer echoes the answer, shows the evaluation and then fetches the
// next question. Blank input is ignored.
func (c *Client) SubmitAnswer(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	c.AppendMessage(userLabel+text, api.SenderUser, api.PaneQuizChat)

	_, answer := c.Current()
	var resp api.CheckAnswerResponse
	if err := c.postJSON(ctx, api.RouteCheckAnswer, api.CheckAnswerRequest{UserAnswer: text, CorrectAnswer: answer}, &resp); err != nil {
		return c.fail(api.PaneQuizChat, tutorLabel, "check answer", err)
	}
	c.AppendMessage(tutorLabel+resp.Evaluation, api.SenderBot, api.PaneQuizChat)
	return c.FetchNextQuestion(ctx)
}

// FetchNextQuestion asks the server for another question.
func (c *Client) FetchNextQuestion(ctx context.Context) error {
	var qa api.QuestionResponse
	if err := c.postJSON(ctx, api.RouteNextQuestion, nil, &qa); err != nil {
		return c.fail(api.PaneQuizChat, tutorLabel, "next question", err)
	}
	c.showQuestion(qa)
	return nil
}

// AppendMessage renders text in pane. The text is shown as is.
func (c *Client) AppendMessage(text string, sender api.Sender, pane api.Pane) {
	c.renderer.AppendMessage(api.ChatMessage{Text: text, Sender: sender, Pane: pane})
}

func (c *Client) showQuestion(qa api.QuestionResponse) {
	c.mu.Lock()
	c.question, c.answer = qa.Question, qa.Answer
	c.mu.Unlock()
	c.AppendMessage(tutorLabel+qa.Question, api.SenderBot, api.PaneQuizChat)
}

func (c *Client) fail(pane api.Pane, label, op string, err error) error {
	c.log.Error("request failed", "op", op, "err", err)
	c.AppendMessage(label+api.FallbackMessage, api.SenderBot, pane)
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) postJSON(ctx context.Context, route string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	return c.post(ctx, route, "application/json", body, out)
}

func (c *Client) post(ctx context.Context, route, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: e.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-200 reply from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func multipartFiles(paths []string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(w, p); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func addFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile(api.ImagesField, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
