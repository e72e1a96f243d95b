package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"cardflow/internal/llm"
)

// OpenAIExtractor implements ContactExtractor over an OpenAI-compatible
// chat/completions endpoint.
type OpenAIExtractor struct {
	client *llm.Client
	log    *slog.Logger
}

func NewOpenAIExtractor(client *llm.Client, logger *slog.Logger) *OpenAIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIExtractor{client: client, log: logger}
}

func (e *OpenAIExtractor) ExtractContact(ctx context.Context, rawText string, hint LanguageHint) (ContactRecord, error) {
	start := time.Now()
	schema := BuildContactJSONSchema()

	messages := []llm.Message{
		{Role: "system", Content: buildExtractSystemPrompt(hint)},
		{Role: "user", Content: buildExtractUserPrompt(rawText) + "\n\nReturn ONLY JSON that matches the provided schema."},
		{Role: "system", Content: "JSON Schema:\n" + mustJSON(schema)},
	}

	content, err := e.client.ChatJSON(ctx, messages)
	if err != nil {
		return ContactRecord{}, err
	}

	cleaned, touched, err := SanitizeContactJSON(content)
	if err != nil {
		return ContactRecord{}, fmt.Errorf("sanitize contact json: %w", err)
	}
	if len(touched) > 0 {
		e.log.Warn("parse.extract.sanitize_applied", "touched", touched)
	}
	if err := llm.ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		e.log.Error("parse.extract.schema_validation_failed",
			"error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds())
		return ContactRecord{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var rec ContactRecord
	if err := json.Unmarshal(cleaned, &rec); err != nil {
		return ContactRecord{}, fmt.Errorf("unmarshal contact: %w", err)
	}

	e.log.Info("parse.extract.ok",
		"name", rec.Name, "company", rec.Company, "email", rec.Email,
		"confidence", rec.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds())
	return rec, nil
}

func buildExtractSystemPrompt(hint LanguageHint) string {
	parts := []string{
		"You are a business card reader. Return ONLY JSON that matches the JSON Schema provided.",
		"Extract the card owner's name, company, role, email address, and phone number from OCR text.",
		"Set 'confidence' to your 0..1 estimate that the extracted fields are correct.",
		"Never output null. If a field is not present on the card, omit it.",
	}
	switch hint {
	case LangJapanese:
		parts = append(parts, "The card is in Japanese. Keep names and companies in their original script.")
	case LangEnglish:
		parts = append(parts, "The card is in English.")
	}
	return strings.Join(parts, " ")
}

func buildExtractUserPrompt(rawText string) string {
	var b strings.Builder
	b.WriteString("OCR text of one business card (first ~3k chars):\n")
	b.WriteString(truncateOnRune(rawText, 3000))
	return b.String()
}

// truncateOnRune caps s at max bytes, backing up so a multi-byte rune is
// never split.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
