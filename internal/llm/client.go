package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system | user
	Content string `json:"content"`
}

// ChatJSON sends messages with response_format json_object and returns the
// first choice's content, trimmed.
func (c *Client) ChatJSON(ctx context.Context, messages []Message) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Debug("llm.chat.start", "req_id", rid, "model", c.cfg.Model, "messages", len(messages))

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages":        messages,
	}
	raw, err := c.post(ctx, c.endpoint(), body)
	if err != nil {
		c.log.Error("llm.chat.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.log.Debug("llm.chat.ok", "req_id", rid, "content_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(content), nil
}

// ChatStream opens a streaming completion. The returned stream yields
// content deltas in arrival order and must be Closed by the caller.
// Streaming requests ask for plain text, so no response_format is set.
func (c *Client) ChatStream(ctx context.Context, messages []Message) (*ChatStream, error) {
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
		"stream":      true,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat stream http error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("chat stream status %d: %s", resp.StatusCode, buf.String())
	}
	return &ChatStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// ChatStream reads OpenAI-style SSE lines ("data: {...}" / "data: [DONE]").
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Recv returns the next content delta. io.EOF ends a well-formed stream;
// any other error means the stream died partway.
func (s *ChatStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", io.EOF
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	// Stream closed without [DONE]: treat as truncation.
	return "", fmt.Errorf("stream ended before completion")
}

func (s *ChatStream) Close() error { return s.body.Close() }

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("chat response body close error", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("chat status %d: %s", resp.StatusCode, buf.String())
	}
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return buf.Bytes(), nil
}
