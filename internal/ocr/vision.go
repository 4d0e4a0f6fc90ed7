package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"omaope/internal/retry"
)

const (
	defaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"
	visionScope           = "https://www.googleapis.com/auth/cloud-vision"
	defaultVisionTimeout  = 30 * time.Second
)

// VisionOptions configures the Google Cloud Vision engine. Credentials are
// picked in order: HTTPClient, APIKey, CredentialsFile, then application
// default credentials.
type VisionOptions struct {
	APIKey          string
	CredentialsFile string
	Endpoint        string
	Timeout         time.Duration // per attempt
	Attempts        int
	Backoff         time.Duration
	HTTPClient      *http.Client
}

// VisionEngine runs TEXT_DETECTION through the Vision REST API.
type VisionEngine struct {
	client   *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// NewVisionEngine builds an engine with an authenticated HTTP client.
func NewVisionEngine(ctx context.Context, opts VisionOptions) (*VisionEngine, error) {
	e := &VisionEngine{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}
	if e.endpoint == "" {
		e.endpoint = defaultVisionEndpoint
	}
	if e.timeout <= 0 {
		e.timeout = defaultVisionTimeout
	}
	if e.attempts <= 0 {
		e.attempts = 1
	}
	if e.backoff <= 0 {
		e.backoff = 500 * time.Millisecond
	}

	switch {
	case opts.HTTPClient != nil:
		e.client = opts.HTTPClient
	case opts.APIKey != "":
		e.client = http.DefaultClient
	case opts.CredentialsFile != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read vision credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, visionScope)
		if err != nil {
			return nil, fmt.Errorf("parse vision credentials: %w", err)
		}
		e.client = oauth2.NewClient(ctx, creds.TokenSource)
	default:
		client, err := google.DefaultClient(ctx, visionScope)
		if err != nil {
			return nil, fmt.Errorf("vision default credentials: %w", err)
		}
		e.client = client
	}
	return e, nil
}

func (e *VisionEngine) Name() string { return "vision" }

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image        imageContent  `json:"image"`
	Features     []feature     `json:"features"`
	ImageContext *imageContext `json:"imageContext,omitempty"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type string `json:"type"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	TextAnnotations []struct {
		Description string `json:"description"`
		Locale      string `json:"locale"`
	} `json:"textAnnotations"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vision: status %d: %s", e.code, e.body)
}

// Detect sends one image and returns its ranked text annotations.
func (e *VisionEngine) Detect(ctx context.Context, in Input) (Result, error) {
	if err := checkFormat(in); err != nil {
		return Result{}, err
	}
	req := imageRequest{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(in.Image)},
		Features: []feature{{Type: "TEXT_DETECTION"}},
	}
	if hints := visionLanguageHints(in.Languages); len(hints) > 0 {
		req.ImageContext = &imageContext{LanguageHints: hints}
	}
	body, err := json.Marshal(annotateRequest{Requests: []imageRequest{req}})
	if err != nil {
		return Result{}, err
	}

	var out annotateResponse
	err = retry.Do(ctx, e.attempts, e.backoff, isTransient, func(ctx context.Context) error {
		return e.post(ctx, body, &out)
	})
	if err != nil {
		return Result{}, classify(err)
	}
	if len(out.Responses) == 0 {
		return Result{InputID: in.ID}, nil
	}
	resp := out.Responses[0]
	if resp.Error != nil {
		return Result{}, fmt.Errorf("%w: vision: %s (code %d)", ErrRejected, resp.Error.Message, resp.Error.Code)
	}
	res := Result{InputID: in.ID}
	for _, a := range resp.TextAnnotations {
		res.Annotations = append(res.Annotations, Annotation{Description: a.Description, Locale: a.Locale})
	}
	return res, nil
}

func (e *VisionEngine) post(ctx context.Context, body []byte, out *annotateResponse) error {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	endpoint := e.endpoint
	if e.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(e.apiKey)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	return true
}

// classify wraps a failed call so callers can tell an outage from a
// rejected request or an undecodable answer.
func classify(err error) error {
	var se *statusError
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return err
	case errors.As(err, &se) && !isTransient(err):
		return fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
}

// visionLanguageHints maps Tesseract-style codes to the BCP-47 codes Vision expects.
func visionLanguageHints(langs []string) []string {
	codes := map[string]string{"fin": "fi", "eng": "en", "swe": "sv"}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if c, ok := codes[l]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, l)
	}
	return out
}
