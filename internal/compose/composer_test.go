package compose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"cardflow/internal/parse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testContact = parse.ContactRecord{
	Name:       "山田太郎",
	Company:    "株式会社Example",
	Email:      "taro@example.co.jp",
	Confidence: 0.9,
}

// stubGenerator implements Generator with canned results.
type stubGenerator struct {
	content   EmailContent
	err       error
	deltas    []string
	streamErr error // returned after the deltas instead of io.EOF
	openErr   error
}

func (s *stubGenerator) Generate(ctx context.Context, rec parse.ContactRecord, opts Options) (EmailContent, error) {
	if s.err != nil {
		return EmailContent{}, s.err
	}
	return s.content, nil
}

func (s *stubGenerator) GenerateStream(ctx context.Context, rec parse.ContactRecord, opts Options) (DeltaStream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &stubStream{deltas: s.deltas, errAtEnd: s.streamErr}, nil
}

type stubStream struct {
	deltas   []string
	errAtEnd error
	pos      int
}

func (s *stubStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		if s.errAtEnd != nil {
			return "", s.errAtEnd
		}
		return "", io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *stubStream) Close() error { return nil }

func TestComposeOverridesVerbatim(t *testing.T) {
	gen := &stubGenerator{err: errors.New("must not be called")}
	c := NewComposer(gen, testLogger())

	got, err := c.Compose(context.Background(), testContact, Options{
		SubjectOverride: "打ち合わせの御礼",
		BodyOverride:    "本文そのまま",
		Language:        LangEN, // overrides bypass even the closing policy
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got.Subject != "打ち合わせの御礼" || got.Body != "本文そのまま" {
		t.Fatalf("overrides not verbatim: %+v", got)
	}
}

func TestComposeUsesGeneratorOutput(t *testing.T) {
	gen := &stubGenerator{content: EmailContent{
		Subject: "ご挨拶のお礼",
		Body:    "山田太郎様\n\n先日はありがとうございました。\n\n" + CanonicalClosingJA,
	}}
	c := NewComposer(gen, testLogger())

	got, err := c.Compose(context.Background(), testContact, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got.Subject != "ご挨拶のお礼" {
		t.Fatalf("subject = %q", got.Subject)
	}
	if got.Tone != ToneProfessional || got.Language != LangJA {
		t.Fatalf("defaults not applied: tone=%s lang=%s", got.Tone, got.Language)
	}
	if strings.Count(got.Body, CanonicalClosingJA) != 1 {
		t.Fatalf("closing must appear exactly once:\n%s", got.Body)
	}
}

func TestComposeAppendsMissingClosing(t *testing.T) {
	gen := &stubGenerator{content: EmailContent{
		Subject: "ご挨拶のお礼",
		Body:    "山田太郎様\n\n先日はありがとうございました。",
	}}
	c := NewComposer(gen, testLogger())

	got, err := c.Compose(context.Background(), testContact, Options{Tone: ToneProfessional, Language: LangJA})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasSuffix(got.Body, "\n\n"+CanonicalClosingJA) {
		t.Fatalf("canonical closing not appended after blank line:\n%s", got.Body)
	}
}

func TestComposeClosingPolicyScopedToJapaneseProfessional(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want bool
	}{
		{"ja professional", Options{Tone: ToneProfessional, Language: LangJA}, true},
		{"ja friendly", Options{Tone: ToneFriendly, Language: LangJA}, false},
		{"en professional", Options{Tone: ToneProfessional, Language: LangEN}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{content: EmailContent{Subject: "s", Body: "b"}}
			c := NewComposer(gen, testLogger())
			got, err := c.Compose(context.Background(), testContact, tt.opts)
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			if tt.want {
				if !strings.HasSuffix(got.Body, CanonicalClosingJA) {
					t.Fatalf("body must end with the canonical closing:\n%s", got.Body)
				}
			} else if strings.Contains(got.Body, CanonicalClosingJA) {
				t.Fatalf("closing must not appear outside ja professional:\n%s", got.Body)
			}
		})
	}
}

func TestComposeAppendsClosingAfterMidTextMention(t *testing.T) {
	// The closing sentence appearing in the middle of the body does not
	// satisfy the policy; the body still has to end on it.
	gen := &stubGenerator{content: EmailContent{
		Subject: "ご挨拶のお礼",
		Body:    "山田太郎様\n\n" + CanonicalClosingJA + "\n\n追伸：資料は別送いたします。",
	}}
	c := NewComposer(gen, testLogger())

	got, err := c.Compose(context.Background(), testContact, Options{Tone: ToneProfessional, Language: LangJA})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasSuffix(got.Body, CanonicalClosingJA) {
		t.Fatalf("postscript left the body ending off the closing:\n%s", got.Body)
	}
	if !strings.Contains(got.Body, "追伸") {
		t.Fatalf("postscript lost: %s", got.Body)
	}
}

func TestComposeTemplateWithSignatureEndsWithClosing(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model overloaded")}
	c := NewComposer(gen, testLogger())

	got, err := c.Compose(context.Background(), testContact, Options{
		Tone: ToneProfessional, Language: LangJA,
		SenderName: "佐藤花子", SenderCompany: "カードフロー株式会社",
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasSuffix(got.Body, CanonicalClosingJA) {
		t.Fatalf("signature displaced the closing from the end:\n%s", got.Body)
	}
	if strings.Count(got.Body, CanonicalClosingJA) != 1 {
		t.Fatalf("closing duplicated:\n%s", got.Body)
	}
	if !strings.Contains(got.Body, "カードフロー株式会社 佐藤花子") {
		t.Fatalf("signature missing:\n%s", got.Body)
	}
}

func TestComposeFallsBackToTemplate(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{"generator error", &stubGenerator{err: errors.New("model overloaded")}},
		{"empty subject", &stubGenerator{content: EmailContent{Body: "本文"}}},
		{"empty body", &stubGenerator{content: EmailContent{Subject: "件名"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(tt.gen, testLogger())
			got, err := c.Compose(context.Background(), testContact, Options{})
			if err != nil {
				t.Fatalf("template fallback must not fail: %v", err)
			}
			if got.Subject == "" || got.Body == "" {
				t.Fatalf("fallback produced empty content: %+v", got)
			}
			if !strings.Contains(got.Body, testContact.Name) {
				t.Fatalf("template must address the contact by name:\n%s", got.Body)
			}
			if !strings.HasSuffix(got.Body, CanonicalClosingJA) {
				t.Fatalf("default ja professional fallback must end with the closing:\n%s", got.Body)
			}
		})
	}
}

func TestComposeStreamFramesSubjectThenBody(t *testing.T) {
	gen := &stubGenerator{deltas: []string{
		"Subject: ご挨拶",
		"のお礼\n\n山田",
		"太郎様\n\nお世話になっております。",
	}}
	c := NewComposer(gen, testLogger())

	s := c.ComposeStream(context.Background(), testContact, Options{})

	var subject string
	var body strings.Builder
	sawSubjectFirst := false
	for i := 0; ; i++ {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if frag.Subject != "" {
			if i != 0 {
				t.Fatalf("subject fragment arrived at position %d", i)
			}
			sawSubjectFirst = true
			subject = frag.Subject
			continue
		}
		body.WriteString(frag.BodyDelta)
	}
	if !sawSubjectFirst {
		t.Fatal("stream never produced a subject fragment")
	}
	if subject != "ご挨拶のお礼" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body.String(), "お世話になっております。") {
		t.Fatalf("body deltas incomplete: %q", body.String())
	}

	final := s.Final()
	if final.Subject != subject {
		t.Fatalf("final subject %q != streamed subject %q", final.Subject, subject)
	}
	if !strings.HasSuffix(final.Body, CanonicalClosingJA) {
		t.Fatalf("final body must close canonically:\n%s", final.Body)
	}
}

func TestComposeStreamFinalWithoutRecv(t *testing.T) {
	// A caller that never drains fragments must still get the final content;
	// the producer drops fragments rather than waiting on the channel.
	deltas := []string{"Subject: ご挨拶のお礼\n\n"}
	for i := 0; i < 40; i++ {
		deltas = append(deltas, "本文の続きです。")
	}
	gen := &stubGenerator{deltas: deltas}
	c := NewComposer(gen, testLogger())

	s := c.ComposeStream(context.Background(), testContact, Options{})
	final := s.Final()
	if final.Subject != "ご挨拶のお礼" {
		t.Fatalf("final subject = %q", final.Subject)
	}
	if !strings.HasSuffix(final.Body, CanonicalClosingJA) {
		t.Fatalf("final body must end with the closing:\n%s", final.Body)
	}
	if s.Dropped() == 0 {
		t.Fatal("expected fragment drops with no consumer draining")
	}
}

func TestComposeStreamErrorDiscardsPartial(t *testing.T) {
	gen := &stubGenerator{
		deltas:    []string{"Subject: 途中まで\n\n書きかけの本文"},
		streamErr: errors.New("connection reset"),
	}
	c := NewComposer(gen, testLogger())

	s := c.ComposeStream(context.Background(), testContact, Options{})
	for {
		if _, err := s.Recv(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("Recv: %v", err)
		}
	}

	final := s.Final()
	if strings.Contains(final.Body, "書きかけの本文") {
		t.Fatalf("truncated body leaked into the final content:\n%s", final.Body)
	}
	if final.Subject == "" || final.Body == "" {
		t.Fatalf("template substitute missing: %+v", final)
	}
	if !strings.HasSuffix(final.Body, CanonicalClosingJA) {
		t.Fatalf("substitute must end with the closing:\n%s", final.Body)
	}
}

func TestComposeStreamOpenErrorUsesTemplate(t *testing.T) {
	gen := &stubGenerator{openErr: errors.New("429 too many requests")}
	c := NewComposer(gen, testLogger())

	s := c.ComposeStream(context.Background(), testContact, Options{Tone: ToneFriendly, Language: LangEN})
	for {
		if _, err := s.Recv(); errors.Is(err, io.EOF) {
			break
		}
	}
	final := s.Final()
	if final.Subject == "" || final.Body == "" {
		t.Fatalf("template substitute missing: %+v", final)
	}
	if final.Tone != ToneFriendly || final.Language != LangEN {
		t.Fatalf("options not carried: %+v", final)
	}
}
