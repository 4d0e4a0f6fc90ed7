// Package upload spools multipart files to disk for the duration of a
// request. Callers defer Batch.Remove so temporary files are deleted on every
// exit path.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned for uploads that are neither images nor PDFs.
var ErrUnsupportedType = errors.New("unsupported file type (only images and PDF allowed)")

// TempFile is an uploaded file spooled to local disk.
type TempFile struct {
	Name string // client-side filename
	Path string
	MIME string
}

func (f *TempFile) IsImage() bool { return strings.HasPrefix(f.MIME, "image/") }
func (f *TempFile) IsPDF() bool   { return strings.HasPrefix(f.MIME, "application/pdf") }

// ContentType returns the sniffed MIME type, e.g. "image/png".
func (f *TempFile) ContentType() string { return f.MIME }

// Read returns the spooled content.
func (f *TempFile) Read() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Remove deletes the file. Removing an already deleted file is not an error.
func (f *TempFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Batch is the set of files spooled for one request.
type Batch []*TempFile

// Remove deletes every file in the batch and returns the first failure.
func (b Batch) Remove() error {
	var first error
	for _, f := range b {
		if err := f.Remove(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Spool copies one multipart file into dir and checks its content type.
func Spool(dir string, fh *multipart.FileHeader) (*TempFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tf := &TempFile{Name: fh.Filename, Path: dst.Name()}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = tf.Remove()
		return nil, fmt.Errorf("spool upload %s: %w", fh.Filename, err)
	}
	if err := dst.Close(); err != nil {
		_ = tf.Remove()
		return nil, fmt.Errorf("spool upload %s: %w", fh.Filename, err)
	}

	mt, err := mimetype.DetectFile(tf.Path)
	if err != nil {
		_ = tf.Remove()
		return nil, fmt.Errorf("detect type of %s: %w", fh.Filename, err)
	}
	tf.MIME = mt.String()
	if !tf.IsImage() && !tf.IsPDF() {
		_ = tf.Remove()
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedType, fh.Filename, tf.MIME)
	}
	return tf, nil
}

// SpoolAll spools every file header. On failure the files spooled so far are
// removed before returning.
func SpoolAll(dir string, fhs []*multipart.FileHeader) (Batch, error) {
	batch := make(Batch, 0, len(fhs))
	for _, fh := range fhs {
		tf, err := Spool(dir, fh)
		if err != nil {
			_ = batch.Remove()
			return nil, err
		}
		batch = append(batch, tf)
	}
	return batch, nil
}
