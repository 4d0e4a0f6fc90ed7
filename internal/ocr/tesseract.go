package ocr

import "errors"

// ErrTesseractUnavailable is returned when the binary was built without the
// tesseract build tag.
var ErrTesseractUnavailable = errors.New("ocr: built without tesseract support (rebuild with -tags tesseract)")

// newTesseract is installed by tesseract_engine.go.
var newTesseract func() Engine

// NewTesseractEngine returns the local Tesseract engine if it was compiled in.
func NewTesseractEngine() (Engine, error) {
	if newTesseract == nil {
		return nil, ErrTesseractUnavailable
	}
	return newTesseract(), nil
}
