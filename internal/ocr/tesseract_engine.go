//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	newTesseract = func() Engine {
		return &TesseractEngine{clientFactory: gosseract.NewClient}
	}
}

// TesseractEngine implements Engine with a local libtesseract via gosseract.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Detect recognizes the whole image as a single annotation.
func (e *TesseractEngine) Detect(ctx context.Context, in Input) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	if err := checkFormat(in); err != nil {
		return Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}
	res := Result{InputID: in.ID}
	if plain := strings.TrimSpace(text); plain != "" {
		res.Annotations = []Annotation{{Description: plain, Locale: firstLanguage(in.Languages)}}
	}
	return res, nil
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}
