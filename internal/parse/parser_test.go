package parse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExtractor struct {
	rec ContactRecord
	err error
}

func (s stubExtractor) ExtractContact(ctx context.Context, rawText string, hint LanguageHint) (ContactRecord, error) {
	if s.err != nil {
		return ContactRecord{}, s.err
	}
	return s.rec, nil
}

const cardText = "Taro Yamada\nExample Corp\ntaro@example.com"

func TestParseTrustsHighConfidenceAI(t *testing.T) {
	ai := ContactRecord{
		Name:       "山田 太郎",
		Company:    "株式会社Example",
		Email:      "taro@example.co.jp",
		Confidence: 0.92,
	}
	p := NewParser(stubExtractor{rec: ai}, testLogger())

	got, err := p.Parse(context.Background(), cardText, LangAuto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != ai {
		t.Fatalf("high-confidence AI record must pass through unchanged:\ngot  %+v\nwant %+v", got, ai)
	}
}

func TestParseMergesLowConfidenceAI(t *testing.T) {
	// AI read the name but missed the email; confidence below the trust
	// threshold triggers field-by-field corroboration.
	ai := ContactRecord{Name: "Taro Yamada", Confidence: 0.5}
	p := NewParser(stubExtractor{rec: ai}, testLogger())

	got, err := p.Parse(context.Background(), cardText, LangAuto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Name != "Taro Yamada" {
		t.Fatalf("AI field must win the merge, got name %q", got.Name)
	}
	if got.Email != "taro@example.com" {
		t.Fatalf("pattern must backfill the email, got %q", got.Email)
	}
	if got.Company != "Example Corp" {
		t.Fatalf("pattern must backfill the company, got %q", got.Company)
	}
	if got.Confidence != MergedConfidenceFloor {
		t.Fatalf("merged confidence = %v, want floor %v", got.Confidence, MergedConfidenceFloor)
	}
}

func TestParseMergeKeepsStrongerAIConfidence(t *testing.T) {
	ai := ContactRecord{Name: "Taro Yamada", Email: "taro@example.com", Confidence: 0.65}
	p := NewParser(stubExtractor{rec: ai}, testLogger())

	got, err := p.Parse(context.Background(), cardText, LangAuto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Confidence != 0.65 {
		t.Fatalf("confidence = %v, want the AI's own 0.65 above the floor", got.Confidence)
	}
}

func TestParseFallsBackWhenAIFails(t *testing.T) {
	p := NewParser(stubExtractor{err: errors.New("model overloaded")}, testLogger())

	got, err := p.Parse(context.Background(), cardText, LangAuto)
	if err != nil {
		t.Fatalf("Parse must absorb the AI failure, got %v", err)
	}
	if got.Confidence != PatternConfidence {
		t.Fatalf("fallback confidence = %v, want fixed %v", got.Confidence, PatternConfidence)
	}
	if got.Name != "Taro Yamada" || got.Email != "taro@example.com" {
		t.Fatalf("pattern extraction incomplete: %+v", got)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		hint LanguageHint
		want LanguageHint
	}{
		{"explicit hint wins", "Taro Yamada", LangJapanese, LangJapanese},
		{"kanji detected", "山田太郎\n株式会社Example", LangAuto, LangJapanese},
		{"katakana detected", "ヤマダ タロウ", LangAuto, LangJapanese},
		{"latin falls through", "Taro Yamada\nExample Corp", LangAuto, LangEnglish},
		{"english hint over kanji", "山田太郎", LangEnglish, LangEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.text, tt.hint); got != tt.want {
				t.Fatalf("DetectLanguage(%q, %s) = %s, want %s", tt.text, tt.hint, got, tt.want)
			}
		})
	}
}
