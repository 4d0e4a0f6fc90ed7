// Package ocr defines a small abstraction over text-detection providers so the
// quiz backend can run against a cloud API (Google Cloud Vision) or a local
// engine (Tesseract) without knowing which one is configured.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamUnavailable means the OCR provider could not be reached or kept failing.
	ErrUpstreamUnavailable = errors.New("ocr: upstream unavailable")
	// ErrMalformedResponse means the provider answered with a body that could not be decoded.
	ErrMalformedResponse = errors.New("ocr: malformed upstream response")
	// ErrRejected means the provider refused the request; retrying will not help.
	ErrRejected = errors.New("ocr: request rejected by provider")
)

// ImageFormat is the sniffed MIME type of an OCR input, e.g. "image/png".
type ImageFormat string

func (f ImageFormat) IsImage() bool { return strings.HasPrefix(string(f), "image/") }

// Input encapsulates a single image submitted for OCR.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID    string
	Image []byte
	// Format is optional; engines reject inputs that carry a non-image format.
	Format ImageFormat
	// Languages are hints for engines that need trained data selected up front.
	Languages []string
}

// Annotation is one detected text region. Providers rank the full-page text
// first.
type Annotation struct {
	Description string
	Locale      string
}

// Result captures OCR output for a single input image.
type Result struct {
	InputID     string
	Annotations []Annotation
}

// TopText returns the top-ranked detected text, or "" if nothing was found.
func (r Result) TopText() string {
	if len(r.Annotations) == 0 {
		return ""
	}
	return r.Annotations[0].Description
}

func checkFormat(in Input) error {
	if in.Format != "" && !in.Format.IsImage() {
		return fmt.Errorf("%w: %s is not an image", ErrRejected, in.Format)
	}
	return nil
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Detect(ctx context.Context, input Input) (Result, error)
}
