package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cardflow/internal/llm"
	"cardflow/internal/parse"
)

// OpenAIGenerator implements Generator over an OpenAI-compatible
// chat/completions endpoint.
type OpenAIGenerator struct {
	client *llm.Client
	log    *slog.Logger
}

func NewOpenAIGenerator(client *llm.Client, logger *slog.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{client: client, log: logger}
}

// BuildEmailJSONSchema constrains the non-streaming reply.
func BuildEmailJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"subject": map[string]any{"type": "string", "minLength": 1},
			"body":    map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"subject", "body"},
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, rec parse.ContactRecord, opts Options) (EmailContent, error) {
	start := time.Now()
	schema := BuildEmailJSONSchema()

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt(opts)},
		{Role: "user", Content: userPrompt(rec, opts) + "\n\nReturn ONLY JSON with keys \"subject\" and \"body\"."},
	}
	content, err := g.client.ChatJSON(ctx, messages)
	if err != nil {
		return EmailContent{}, err
	}
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		g.log.Error("compose.generate.schema_validation_failed",
			"error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds())
		return EmailContent{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return EmailContent{}, fmt.Errorf("unmarshal email content: %w", err)
	}
	g.log.Info("compose.generate.ok",
		"subject_len", len(out.Subject), "body_len", len(out.Body),
		"elapsed_ms", time.Since(start).Milliseconds())
	return EmailContent{Subject: out.Subject, Body: out.Body}, nil
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, rec parse.ContactRecord, opts Options) (DeltaStream, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt(opts) +
			" Write the subject as the very first line prefixed with \"Subject: \", then an empty line, then the body as plain text. Do not use JSON."},
		{Role: "user", Content: userPrompt(rec, opts)},
	}
	return g.client.ChatStream(ctx, messages)
}

// systemPrompt selects one of the six tone×language variants.
func systemPrompt(opts Options) string {
	base := "You write follow-up emails after exchanging business cards."
	var tone, lang string
	switch opts.Tone {
	case ToneFriendly:
		tone = "Use a warm, friendly register."
	case ToneCasual:
		tone = "Use a relaxed, casual register."
	default:
		tone = "Use a formal, professional register."
	}
	switch opts.Language {
	case LangEN:
		lang = "Write the email in English."
	default:
		lang = "Write the email in Japanese, using appropriate keigo for the chosen register."
	}
	return strings.Join([]string{base, tone, lang,
		"Keep it short: a greeting, one or two sentences of substance, a closing.",
		"Never invent facts about the recipient."}, " ")
}

func userPrompt(rec parse.ContactRecord, opts Options) string {
	var b strings.Builder
	b.WriteString("Recipient from a business card:\n")
	fmt.Fprintf(&b, "- Name: %s\n", rec.Name)
	if rec.Company != "" {
		fmt.Fprintf(&b, "- Company: %s\n", rec.Company)
	}
	if rec.Role != "" {
		fmt.Fprintf(&b, "- Role: %s\n", rec.Role)
	}
	if opts.SenderName != "" {
		fmt.Fprintf(&b, "Sender: %s", opts.SenderName)
		if opts.SenderCompany != "" {
			fmt.Fprintf(&b, " (%s)", opts.SenderCompany)
		}
		b.WriteString("\n")
	}
	if opts.CustomMessage != "" {
		fmt.Fprintf(&b, "Weave in this message naturally: %s\n", opts.CustomMessage)
	}
	return b.String()
}
