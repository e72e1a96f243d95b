package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain tries extractors in order and returns the first success. The defined
// fallback order is cloud vision first, local Tesseract second.
type Chain struct {
	extractors []TextExtractor
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, extractors ...TextExtractor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{extractors: extractors, logger: logger}
}

func (c *Chain) ExtractText(ctx context.Context, imagePath, mimeType string) (Extraction, error) {
	if len(c.extractors) == 0 {
		return Extraction{}, errors.New("no text extractors configured")
	}
	var errs []error
	for _, e := range c.extractors {
		res, err := e.ExtractText(ctx, imagePath, mimeType)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("ocr.extractor_failed, trying next", "path", imagePath, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Extraction{}, fmt.Errorf("all extractors failed: %w", errors.Join(errs...))
}
