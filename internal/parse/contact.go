// Package parse turns raw OCR text into a typed contact record. An AI-based
// extractor produces the primary candidate; a deterministic pattern extractor
// provides a fallback candidate, and the two are merged by a confidence
// policy that degrades gracefully when the AI path is unavailable.
package parse

import "context"

// LanguageHint steers the AI extractor's reading of the card.
type LanguageHint string

const (
	LangAuto      LanguageHint = "auto"
	LangJapanese  LanguageHint = "ja" // primary
	LangEnglish   LanguageHint = "en" // secondary
)

// Confidence policy knobs. The merge semantics depend on these exact values;
// see Parser.Parse.
const (
	// AITrustThreshold: AI candidates at or above this confidence are
	// returned unchanged, no corroboration attempted.
	AITrustThreshold = 0.7
	// PatternConfidence is the fixed score of the deterministic extractor.
	PatternConfidence = 0.4
	// MergedConfidenceFloor is the minimum confidence of a merged record:
	// corroboration raises trust above a weak AI score, but never claims
	// more certainty than a true high-confidence AI read.
	MergedConfidenceFloor = 0.6
)

// ContactRecord is the normalized shape extracted from one business card.
// Immutable once attached to a job; a retry discards and regenerates it.
type ContactRecord struct {
	Name       string  `json:"name"`
	Company    string  `json:"company"`
	Role       string  `json:"role,omitempty"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone,omitempty"`
	Confidence float64 `json:"confidence"` // 0..1
}

// ContactExtractor is the AI collaborator interface the parser depends on.
type ContactExtractor interface {
	ExtractContact(ctx context.Context, rawText string, hint LanguageHint) (ContactRecord, error)
}
