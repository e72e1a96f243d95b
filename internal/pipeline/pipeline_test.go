package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"cardflow/internal/compose"
	"cardflow/internal/dispatch"
	"cardflow/internal/job"
	"cardflow/internal/jobstore"
	"cardflow/internal/ocr"
	"cardflow/internal/parse"
	"cardflow/internal/testsupport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExtractor implements ocr.TextExtractor.
type fakeExtractor struct {
	mu       sync.Mutex
	err      error
	text     string
	calls    int
	inflight int
	peak     int
	gate     chan struct{} // when set, ExtractText blocks until it closes
	onCall   func()
}

func (f *fakeExtractor) ExtractText(ctx context.Context, path, mime string) (ocr.Extraction, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	gate := f.gate
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.err != nil {
		return ocr.Extraction{}, f.err
	}
	text := f.text
	if text == "" {
		text = "Taro Yamada\nExample Corp\ntaro@example.com"
	}
	return ocr.Extraction{Text: text, Confidence: 0.9, Method: "fake"}, nil
}

// fakeAI implements parse.ContactExtractor.
type fakeAI struct {
	rec parse.ContactRecord
	err error
}

func (f *fakeAI) ExtractContact(ctx context.Context, rawText string, hint parse.LanguageHint) (parse.ContactRecord, error) {
	if f.err != nil {
		return parse.ContactRecord{}, f.err
	}
	return f.rec, nil
}

// fakeGenerator implements compose.Generator.
type fakeGenerator struct {
	content compose.EmailContent
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, rec parse.ContactRecord, opts compose.Options) (compose.EmailContent, error) {
	if f.err != nil {
		return compose.EmailContent{}, f.err
	}
	return f.content, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, rec parse.ContactRecord, opts compose.Options) (compose.DeltaStream, error) {
	return nil, errors.New("streaming not supported by fake")
}

// fakeDispatcher implements dispatch.Dispatcher.
type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls int
	last  dispatch.Message
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg dispatch.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = msg
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("delivery-%d", f.calls), nil
}

type fixture struct {
	store      *jobstore.Store
	extractor  *fakeExtractor
	ai         *fakeAI
	generator  *fakeGenerator
	dispatcher *fakeDispatcher
	service    *Service
}

func newFixture(t *testing.T, storeCfg jobstore.Config, cfg Config) *fixture {
	t.Helper()
	if storeCfg.BackoffBase == 0 {
		storeCfg.BackoffBase = time.Millisecond
	}
	st, err := jobstore.New(context.Background(), storeCfg, testsupport.NewMemStore(), testLogger())
	if err != nil {
		t.Fatalf("jobstore.New: %v", err)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	f := &fixture{
		store:     st,
		extractor: &fakeExtractor{},
		ai: &fakeAI{rec: parse.ContactRecord{
			Name:       "Taro Yamada",
			Company:    "Example Corp",
			Email:      "taro@example.com",
			Confidence: 0.9,
		}},
		generator: &fakeGenerator{content: compose.EmailContent{
			Subject: "ご挨拶",
			Body:    "山田太郎様\n\nお世話になっております。",
		}},
		dispatcher: &fakeDispatcher{},
	}
	f.service = New(cfg,
		st,
		f.extractor,
		parse.NewParser(f.ai, testLogger()),
		compose.NewComposer(f.generator, testLogger()),
		f.dispatcher,
		testLogger(),
	)
	return f
}

// run starts the worker pool and returns a stop function that blocks until
// every worker exits.
func (f *fixture) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.service.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (f *fixture) waitTerminal(t *testing.T, id uuid.UUID) job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := f.service.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if j.Status.IsTerminal() {
			return j
		}
		time.Sleep(2 * time.Millisecond)
	}
	j, _ := f.service.Status(id)
	t.Fatalf("job %s never reached a terminal state, stuck at %s", id, j.Status)
	return job.Job{}
}

func TestPipelineHappyPath(t *testing.T) {
	f := newFixture(t, jobstore.Config{}, Config{Workers: 1})

	// Each stage fake observes the job's committed progress on entry, so the
	// checkpoint ladder is asserted from inside the run, not reconstructed.
	var mu sync.Mutex
	var observed []int
	record := func() {
		jobs := f.store.List()
		if len(jobs) == 1 {
			mu.Lock()
			observed = append(observed, jobs[0].Progress)
			mu.Unlock()
		}
	}
	f.extractor.onCall = record

	stop := f.run(t)
	defer stop()

	id, err := f.service.Submit(context.Background(), "/cards/taro.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := f.waitTerminal(t, id)

	if j.Status != job.StatusSent {
		t.Fatalf("status = %s (%s), want sent", j.Status, j.ErrorMessage)
	}
	if j.Progress != 100 {
		t.Fatalf("progress = %d, want 100", j.Progress)
	}
	if j.DeliveryID == "" || j.CompletedAt == nil {
		t.Fatalf("missing delivery evidence: %+v", j)
	}
	if j.Contact == nil || j.Contact.Name != "Taro Yamada" {
		t.Fatalf("contact not attached: %+v", j.Contact)
	}
	if j.Email == nil || j.Email.Subject == "" {
		t.Fatalf("email not attached: %+v", j.Email)
	}
	if j.Attempt != 0 {
		t.Fatalf("attempt = %d, want 0 on first-try success", j.Attempt)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != 10 {
		t.Fatalf("extract stage saw progress %v, want [10]", observed)
	}

	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	if f.dispatcher.last.To != "taro@example.com" {
		t.Fatalf("dispatched to %q", f.dispatcher.last.To)
	}
}

func TestPipelineAttributesExtractFailure(t *testing.T) {
	f := newFixture(t, jobstore.Config{MaxAttempts: 1}, Config{Workers: 1})
	f.extractor.err = errors.New("vision endpoint 503")

	stop := f.run(t)
	defer stop()

	id, err := f.service.Submit(context.Background(), "/cards/bad.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := f.waitTerminal(t, id)

	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if !strings.Contains(j.ErrorMessage, "extract: provider error") {
		t.Fatalf("failure not attributed to extract stage: %q", j.ErrorMessage)
	}
	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	if f.dispatcher.calls != 0 {
		t.Fatal("dispatch must not run after an extract failure")
	}
}

func TestPipelineRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, jobstore.Config{MaxAttempts: 3}, Config{Workers: 1})

	// First attempt fails at dispatch, the second goes through. onCall runs
	// under the extractor's lock at the start of every attempt.
	f.dispatcher.err = errors.New("mail provider 500")
	f.extractor.onCall = func() {
		if f.extractor.calls > 1 {
			f.dispatcher.mu.Lock()
			f.dispatcher.err = nil
			f.dispatcher.mu.Unlock()
		}
	}

	stop := f.run(t)
	defer stop()

	id, err := f.service.Submit(context.Background(), "/cards/taro.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := f.waitTerminal(t, id)

	if j.Status != job.StatusSent {
		t.Fatalf("status = %s (%s), want sent after retry", j.Status, j.ErrorMessage)
	}
	if j.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1 after one retry", j.Attempt)
	}
	f.extractor.mu.Lock()
	calls := f.extractor.calls
	f.extractor.mu.Unlock()
	if calls < 2 {
		t.Fatalf("extract ran %d times, retry must restart the stage ladder", calls)
	}
}

func TestPipelineExhaustsRetries(t *testing.T) {
	const maxAttempts = 2
	f := newFixture(t, jobstore.Config{MaxAttempts: maxAttempts}, Config{Workers: 1})
	f.dispatcher.err = errors.New("mail provider down")

	stop := f.run(t)
	defer stop()

	id, err := f.service.Submit(context.Background(), "/cards/taro.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := f.waitTerminal(t, id)

	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Attempt != maxAttempts {
		t.Fatalf("attempt = %d, want %d", j.Attempt, maxAttempts)
	}
	if !strings.Contains(j.ErrorMessage, fmt.Sprintf("after %d attempts", maxAttempts)) {
		t.Fatalf("unexpected terminal message: %q", j.ErrorMessage)
	}
	if !strings.Contains(j.ErrorMessage, "send: provider error") {
		t.Fatalf("failure not attributed to send stage: %q", j.ErrorMessage)
	}
}

func TestPipelineRejectsContactWithoutEmail(t *testing.T) {
	f := newFixture(t, jobstore.Config{MaxAttempts: 1}, Config{Workers: 1})
	f.ai.rec = parse.ContactRecord{Name: "Taro Yamada", Company: "Example Corp", Confidence: 0.9}

	stop := f.run(t)
	defer stop()

	id, err := f.service.Submit(context.Background(), "/cards/noemail.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := f.waitTerminal(t, id)

	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if !strings.Contains(j.ErrorMessage, "send: validation error") {
		t.Fatalf("missing-email failure not attributed: %q", j.ErrorMessage)
	}
	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	if f.dispatcher.calls != 0 {
		t.Fatal("dispatch must not be called without a recipient address")
	}
}

func TestPipelineHonorsConcurrencyLimit(t *testing.T) {
	const limit = 2
	f := newFixture(t,
		jobstore.Config{Concurrency: limit},
		Config{Workers: 2 * limit},
	)
	gate := make(chan struct{})
	f.extractor.gate = gate

	stop := f.run(t)
	defer stop()

	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 2*limit; i++ {
		id, err := f.service.Submit(ctx, "/cards/card.jpg", "image/jpeg")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}

	// Wait for the claimed set to saturate, then hold long enough that an
	// over-claim would show up in the peak.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.extractor.mu.Lock()
		inflight := f.extractor.inflight
		f.extractor.mu.Unlock()
		if inflight == limit {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("inflight never reached %d", limit)
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for _, id := range ids {
		if j := f.waitTerminal(t, id); j.Status != job.StatusSent {
			t.Fatalf("job %s: status %s (%s)", id, j.Status, j.ErrorMessage)
		}
	}

	f.extractor.mu.Lock()
	defer f.extractor.mu.Unlock()
	if f.extractor.peak > limit {
		t.Fatalf("peak concurrent extractions %d exceeds limit %d", f.extractor.peak, limit)
	}
}

func TestSubmitRejectsUnsupportedMIME(t *testing.T) {
	f := newFixture(t, jobstore.Config{}, Config{Workers: 1})
	if _, err := f.service.Submit(context.Background(), "/cards/card.gif", "image/gif"); err == nil {
		t.Fatal("expected unsupported mime type error")
	}
}
