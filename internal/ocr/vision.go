package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// VisionConfig for the cloud OCR client.
type VisionConfig struct {
	APIKey   string
	Endpoint string        // full URL of the text-detection endpoint
	Timeout  time.Duration // per-request timeout
}

// VisionClient is the primary cloud OCR provider: it posts the image as
// base64 and reads back full text plus a confidence score.
type VisionClient struct {
	cfg  VisionConfig
	http *http.Client
	log  *slog.Logger
}

func NewVisionClient(cfg VisionConfig, logger *slog.Logger) *VisionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

func (c *VisionClient) ExtractText(ctx context.Context, imagePath, mimeType string) (Extraction, error) {
	start := time.Now()
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return Extraction{}, fmt.Errorf("read image: %w", err)
	}

	payload := map[string]any{
		"image":     base64.StdEncoding.EncodeToString(img),
		"mime_type": mimeType,
		"features":  []string{"TEXT_DETECTION"},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return Extraction{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("vision http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return Extraction{}, fmt.Errorf("vision status %d: %s", resp.StatusCode, buf.String())
	}

	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Extraction{}, fmt.Errorf("decode vision response: %w", err)
	}
	if out.Text == "" {
		return Extraction{}, fmt.Errorf("vision returned no text")
	}

	res := Extraction{
		Text:       out.Text,
		Confidence: out.Confidence,
		Method:     "vision",
		Duration:   time.Since(start),
	}
	c.log.Debug("ocr.vision.ok", "path", imagePath,
		"text_bytes", len(res.Text), "confidence", res.Confidence,
		"elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}
