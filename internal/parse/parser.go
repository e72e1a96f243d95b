package parse

import (
	"context"
	"log/slog"
)

// Parser applies the merge policy over the AI extractor and the pattern
// fallback. The order is fixed: AI first, trusted outright above the
// threshold; otherwise corroborated field-by-field against the pattern
// candidate; pattern-only when the AI call fails.
type Parser struct {
	ai      ContactExtractor
	pattern PatternExtractor
	logger  *slog.Logger
}

func NewParser(ai ContactExtractor, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{ai: ai, logger: logger}
}

// Parse produces the merged contact record for rawText.
func (p *Parser) Parse(ctx context.Context, rawText string, hint LanguageHint) (ContactRecord, error) {
	lang := DetectLanguage(rawText, hint)

	aiRec, err := p.ai.ExtractContact(ctx, rawText, lang)
	if err != nil {
		// AI path unavailable: return the deterministic candidate alone.
		// Its fixed low confidence is a visible signal, never a hidden zero.
		p.logger.Warn("parse.ai_failed, using pattern extractor", "lang", string(lang), "error", err)
		return p.pattern.Extract(rawText), nil
	}

	if aiRec.Confidence >= AITrustThreshold {
		p.logger.Debug("parse.ai_trusted", "confidence", aiRec.Confidence)
		return aiRec, nil
	}

	patRec := p.pattern.Extract(rawText)
	merged := mergeRecords(aiRec, patRec)
	p.logger.Debug("parse.merged",
		"ai_confidence", aiRec.Confidence,
		"merged_confidence", merged.Confidence,
	)
	return merged, nil
}

// mergeRecords prefers the AI value per field, falling back to the pattern
// value. Merged confidence is max(ai, floor): the attempt at corroboration
// raises trust above a weak AI score without ever exceeding a genuine
// high-confidence AI read.
func mergeRecords(ai, pat ContactRecord) ContactRecord {
	merged := ContactRecord{
		Name:    firstNonEmpty(ai.Name, pat.Name),
		Company: firstNonEmpty(ai.Company, pat.Company),
		Role:    firstNonEmpty(ai.Role, pat.Role),
		Email:   firstNonEmpty(ai.Email, pat.Email),
		Phone:   firstNonEmpty(ai.Phone, pat.Phone),
	}
	merged.Confidence = ai.Confidence
	if merged.Confidence < MergedConfidenceFloor {
		merged.Confidence = MergedConfidenceFloor
	}
	return merged
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
