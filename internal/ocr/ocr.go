// Package ocr extracts raw text from card images. A cloud vision provider is
// the primary extractor; a local Tesseract extractor can be configured as a
// fallback honoring the same interface.
package ocr

import (
	"context"
	"time"
)

// Extraction is the raw recognized text plus the source's confidence score.
type Extraction struct {
	Text       string
	Confidence float64 // 0..1
	Method     string  // "vision" | "tesseract"
	Duration   time.Duration
}

// TextExtractor is the narrow collaborator interface the pipeline consumes.
type TextExtractor interface {
	ExtractText(ctx context.Context, imagePath, mimeType string) (Extraction, error)
}

var supportedMIME = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// SupportedMIME reports whether the pipeline accepts this image type.
func SupportedMIME(mimeType string) bool {
	_, ok := supportedMIME[mimeType]
	return ok
}
