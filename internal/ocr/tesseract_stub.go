//go:build !ocr

package ocr

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type noReader struct{}

// NewReader returns a reader that always reports ErrUnavailable. Build with
// -tags ocr for Tesseract support.
func NewReader(cfg Config, _ *zap.Logger) (Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ocr config")
	}
	return noReader{}, nil
}

func (noReader) Read(context.Context, image.Image, image.Rectangle) (Result, error) {
	return Result{}, errors.Wrap(ErrUnavailable, "built without OCR (rebuild with -tags ocr)")
}

func (noReader) Close() error { return nil }
