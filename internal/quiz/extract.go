package quiz

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"omaope/internal/ocr"
)

// Material is one uploaded file of study material.
type Material interface {
	Read() ([]byte, error)
	IsPDF() bool
	ContentType() string
}

// extractText returns the text of one file: the top-ranked OCR annotation
// for images, the plain text of every page for PDFs.
func (s *Service) extractText(ctx context.Context, index int, m Material) (string, error) {
	data, err := m.Read()
	if err != nil {
		return "", fmt.Errorf("read upload %d: %w", index, err)
	}
	if m.IsPDF() {
		text, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
		}
		return text, nil
	}
	res, err := s.ocr.Detect(ctx, ocr.Input{
		ID:        fmt.Sprintf("image-%d", index),
		Image:     data,
		Format:    ocr.ImageFormat(m.ContentType()),
		Languages: s.settings.OCRLanguages,
	})
	if err != nil {
		return "", fmt.Errorf("ocr image %d: %w", index, err)
	}
	return res.TopText(), nil
}

func extractPDF(content []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}
