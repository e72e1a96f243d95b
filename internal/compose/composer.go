package compose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"cardflow/internal/parse"
)

// Composer applies the generation policy: overrides verbatim, AI generation
// with validation, template fallback, closing fix-up.
type Composer struct {
	gen    Generator
	logger *slog.Logger
}

func NewComposer(gen Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, logger: logger}
}

// Compose produces the final email content for rec.
func (c *Composer) Compose(ctx context.Context, rec parse.ContactRecord, opts Options) (EmailContent, error) {
	opts.normalize()

	if opts.SubjectOverride != "" && opts.BodyOverride != "" {
		return EmailContent{
			Subject:  opts.SubjectOverride,
			Body:     opts.BodyOverride,
			Tone:     opts.Tone,
			Language: opts.Language,
		}, nil
	}

	content, err := c.gen.Generate(ctx, rec, opts)
	if err == nil {
		err = validateContent(content)
	}
	if err != nil {
		c.logger.Warn("compose.ai_failed, using template",
			"tone", string(opts.Tone), "lang", string(opts.Language), "error", err)
		content = RenderTemplate(rec, opts)
	}
	content.Tone = opts.Tone
	content.Language = opts.Language
	return applyClosingPolicy(content), nil
}

func validateContent(content EmailContent) error {
	if strings.TrimSpace(content.Subject) == "" {
		return errors.New("generated subject is empty")
	}
	if strings.TrimSpace(content.Body) == "" {
		return errors.New("generated body is empty")
	}
	return nil
}

// Fragment is one increment of a streamed composition. Subject resolves
// first and is sent once; afterwards BodyDelta carries body growth.
type Fragment struct {
	Subject   string
	BodyDelta string
}

// Stream is a restartable-on-demand (not resumable) producer of an ordered
// fragment sequence terminating in one final validated EmailContent. A
// stream error discards all accumulated partial state and substitutes the
// template path; a truncated AI body is never returned as final.
type Stream struct {
	ch      chan Fragment
	done    chan struct{}
	final   EmailContent
	dropped int
}

// Recv returns the next fragment; io.EOF once the stream has finished.
func (s *Stream) Recv() (Fragment, error) {
	frag, ok := <-s.ch
	if !ok {
		return Fragment{}, io.EOF
	}
	return frag, nil
}

// emit hands a fragment to the consumer without ever blocking the producer:
// fragments are advisory progress, and a caller that only waits on Final
// must not wedge the generation. Drops are counted so slow consumers can
// tell the fragment trail is incomplete; Final stays authoritative.
func (s *Stream) emit(frag Fragment) {
	select {
	case s.ch <- frag:
	default:
		s.dropped++
	}
}

// Dropped reports how many fragments were discarded because the consumer
// fell behind. Only meaningful after the stream has finished.
func (s *Stream) Dropped() int {
	<-s.done
	return s.dropped
}

// Final blocks until the stream completes and returns the validated content.
func (s *Stream) Final() EmailContent {
	<-s.done
	return s.final
}

// ComposeStream starts a streaming composition. The generator is expected to
// emit the subject as a first line ("Subject: ..."), a blank line, then the
// body; the composer parses that framing into fragments.
func (c *Composer) ComposeStream(ctx context.Context, rec parse.ContactRecord, opts Options) *Stream {
	opts.normalize()
	s := &Stream{ch: make(chan Fragment, 16), done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(s.ch)

		if opts.SubjectOverride != "" && opts.BodyOverride != "" {
			s.emit(Fragment{Subject: opts.SubjectOverride})
			s.emit(Fragment{BodyDelta: opts.BodyOverride})
			s.final = applyClosingPolicy(EmailContent{
				Subject: opts.SubjectOverride, Body: opts.BodyOverride,
				Tone: opts.Tone, Language: opts.Language,
			})
			return
		}

		content, err := c.runStream(ctx, s, rec, opts)
		if err == nil {
			err = validateContent(content)
		}
		if err != nil {
			// Partial output already surfaced to the caller is advisory
			// only; the final result comes from the template path.
			c.logger.Warn("compose.stream_failed, using template",
				"tone", string(opts.Tone), "lang", string(opts.Language), "error", err)
			content = RenderTemplate(rec, opts)
		}
		content.Tone = opts.Tone
		content.Language = opts.Language
		s.final = applyClosingPolicy(content)
	}()
	return s
}

func (c *Composer) runStream(ctx context.Context, s *Stream, rec parse.ContactRecord, opts Options) (EmailContent, error) {
	ds, err := c.gen.GenerateStream(ctx, rec, opts)
	if err != nil {
		return EmailContent{}, err
	}
	defer func() { _ = ds.Close() }()

	var (
		head        strings.Builder // text before the subject line break
		body        strings.Builder
		subjectSent bool
		subject     string
	)
	for {
		delta, err := ds.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return EmailContent{}, err
		}
		if subjectSent {
			body.WriteString(delta)
			s.emit(Fragment{BodyDelta: delta})
			continue
		}
		head.WriteString(delta)
		if idx := strings.IndexByte(head.String(), '\n'); idx >= 0 {
			full := head.String()
			subject = parseSubjectLine(full[:idx])
			rest := strings.TrimLeft(full[idx+1:], "\n")
			subjectSent = true
			s.emit(Fragment{Subject: subject})
			if rest != "" {
				body.WriteString(rest)
				s.emit(Fragment{BodyDelta: rest})
			}
		}
	}
	if !subjectSent {
		// Model never produced a line break; the whole head is the subject
		// line of a bodiless reply, which validation will reject.
		subject = parseSubjectLine(head.String())
	}
	return EmailContent{Subject: subject, Body: strings.TrimSpace(body.String())}, nil
}

func parseSubjectLine(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"Subject:", "subject:", "件名:", "件名："} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return line
}
