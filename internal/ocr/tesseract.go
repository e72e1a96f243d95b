package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig for the local OCR fallback.
type TesseractConfig struct {
	Languages   []string // default jpn+eng
	TessdataDir string   // optional TESSDATA_PREFIX override
	PSM         gosseract.PageSegMode
}

// TesseractExtractor runs Tesseract locally through gosseract. It reports a
// heuristic confidence since local OCR on glossy card photos is noisier than
// the cloud path.
type TesseractExtractor struct {
	cfg TesseractConfig
	log *slog.Logger
}

func NewTesseractExtractor(cfg TesseractConfig, logger *slog.Logger) *TesseractExtractor {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"jpn", "eng"}
	}
	if cfg.PSM == 0 {
		// Cards are sparse text, not uniform blocks.
		cfg.PSM = gosseract.PSM_SPARSE_TEXT
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractExtractor{cfg: cfg, log: logger}
}

func (t *TesseractExtractor) ExtractText(ctx context.Context, imagePath, mimeType string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	start := time.Now()

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(t.cfg.Languages...); err != nil {
		return Extraction{}, fmt.Errorf("set language: %w", err)
	}
	if t.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataDir); err != nil {
			return Extraction{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetPageSegMode(t.cfg.PSM); err != nil {
		return Extraction{}, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return Extraction{}, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Extraction{}, fmt.Errorf("tesseract: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Extraction{}, fmt.Errorf("tesseract returned no text")
	}

	res := Extraction{
		Text:       text,
		Confidence: heuristicConfidence(text),
		Method:     "tesseract",
		Duration:   time.Since(start),
	}
	t.log.Debug("ocr.tesseract.ok", "path", imagePath,
		"text_bytes", len(res.Text), "confidence", res.Confidence,
		"elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}
