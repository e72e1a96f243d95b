// Package compose turns a contact record into follow-up email content. An
// AI generator produces subject and body; a deterministic template keyed by
// tone and language stands in whenever the AI path fails validation, times
// out, or errors. Template output never fails: it is pure local computation.
package compose

import (
	"context"
	"strings"

	"cardflow/internal/parse"
)

// Tone selects the register of the generated email.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
)

// Language selects the email language. Japanese is the primary language of
// the card corpus; English is the secondary.
type Language string

const (
	LangJA Language = "ja"
	LangEN Language = "en"
)

// CanonicalClosingJA is the closing sentence policy requires on every
// Japanese professional-tone body.
const CanonicalClosingJA = "今後ともどうぞよろしくお願いいたします。"

// EmailContent is the finished subject and body. Immutable once attached to
// a job; a retry discards and regenerates it.
type EmailContent struct {
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Tone     Tone     `json:"tone"`
	Language Language `json:"language"`
}

// Options parameterize one composition.
type Options struct {
	Tone          Tone
	Language      Language
	CustomMessage string // extra context woven into the email
	SenderName    string
	SenderCompany string

	// SubjectOverride/BodyOverride, when both set, are returned verbatim
	// with no generation attempted.
	SubjectOverride string
	BodyOverride    string
}

func (o *Options) normalize() {
	if o.Tone == "" {
		o.Tone = ToneProfessional
	}
	if o.Language == "" {
		o.Language = LangJA
	}
}

// Generator is the AI collaborator interface the composer depends on.
type Generator interface {
	Generate(ctx context.Context, rec parse.ContactRecord, opts Options) (EmailContent, error)
	GenerateStream(ctx context.Context, rec parse.ContactRecord, opts Options) (DeltaStream, error)
}

// DeltaStream yields raw text deltas from a streaming generation. io.EOF
// marks clean termination; any other error marks a truncated stream.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// applyClosingPolicy enforces the canonical closing for the Japanese
// professional tone: the body must end with the sentence. A body that does
// not gets it appended after a blank line, rather than being rejected.
func applyClosingPolicy(content EmailContent) EmailContent {
	if content.Language != LangJA || content.Tone != ToneProfessional {
		return content
	}
	body := strings.TrimRight(content.Body, "\n ")
	if !strings.HasSuffix(body, CanonicalClosingJA) {
		body = body + "\n\n" + CanonicalClosingJA
	}
	content.Body = body
	return content
}
