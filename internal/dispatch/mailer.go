package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// MailerConfig for the HTTP delivery provider.
type MailerConfig struct {
	APIKey      string
	Endpoint    string // messages endpoint URL
	FromAddress string // sender credential/address used when msg.From is empty
	Timeout     time.Duration
}

// Mailer posts messages to a transactional mail API.
type Mailer struct {
	cfg  MailerConfig
	http *http.Client
	log  *slog.Logger
}

func NewMailer(cfg MailerConfig, logger *slog.Logger) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

func (m *Mailer) Dispatch(ctx context.Context, msg Message) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	if msg.From == "" {
		msg.From = m.cfg.FromAddress
	}
	if msg.To == "" {
		return "", fmt.Errorf("message has no recipient")
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rid)

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return "", fmt.Errorf("mail status %d: %s", resp.StatusCode, buf.String())
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode mail response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("mail provider returned no delivery id")
	}

	m.log.Info("dispatch.sent", "req_id", rid, "to", msg.To,
		"delivery_id", out.ID, "elapsed_ms", time.Since(start).Milliseconds())
	return out.ID, nil
}
