// Package pipeline sequences each job through extraction, parsing,
// composition and dispatch. It is the only component aware of the full
// stage order; all state mutations go through the job store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardflow/internal/compose"
	"cardflow/internal/dispatch"
	"cardflow/internal/job"
	"cardflow/internal/jobstore"
	"cardflow/internal/ocr"
	"cardflow/internal/parse"
)

// Stage names used in failure attribution. Operators must be able to tell an
// OCR failure from a dispatch failure.
const (
	StageExtract = "extract"
	StageParse   = "parse"
	StageCompose = "compose"
	StageSend    = "send"
)

// Progress checkpoints per stage entry; send completion commits 100.
var progressCheckpoints = map[job.Status]int{
	job.StatusExtractingText: 10,
	job.StatusParsing:        40,
	job.StatusComposing:      55,
	job.StatusSending:        70,
}

// Config tunes the worker pool.
type Config struct {
	Workers      int
	StageTimeout time.Duration // per external call
	PollInterval time.Duration // safety net for backoff expiry
	LanguageHint parse.LanguageHint
	Compose      compose.Options // tone, language, sender identity defaults
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.LanguageHint == "" {
		c.LanguageHint = parse.LangAuto
	}
}

// Service is the pipeline orchestrator plus its caller-facing surface.
type Service struct {
	cfg        Config
	store      *jobstore.Store
	extractor  ocr.TextExtractor
	parser     *parse.Parser
	composer   *compose.Composer
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger

	wg sync.WaitGroup
}

func New(
	cfg Config,
	store *jobstore.Store,
	extractor ocr.TextExtractor,
	parser *parse.Parser,
	composer *compose.Composer,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
) *Service {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		extractor:  extractor,
		parser:     parser,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Submit enqueues one card image.
func (s *Service) Submit(ctx context.Context, imagePath, mimeType string) (uuid.UUID, error) {
	if !ocr.SupportedMIME(mimeType) {
		return uuid.Nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
	return s.store.Enqueue(ctx, job.Payload{ImagePath: imagePath, MIMEType: mimeType})
}

// Status returns the latest committed snapshot for id.
func (s *Service) Status(id uuid.UUID) (job.Job, error) { return s.store.GetStatus(id) }

// Retry re-queues a failed job.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error { return s.store.Retry(ctx, id) }

// CancelIfQueued withdraws an unclaimed job.
func (s *Service) CancelIfQueued(ctx context.Context, id uuid.UUID) bool {
	return s.store.CancelIfQueued(ctx, id)
}

// Run starts the worker pool and blocks until ctx is canceled and every
// worker has finished its current job.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("pipeline started", "workers", s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.workerLoop(ctx, workerID)
		}(i + 1)
	}
	s.wg.Wait()
	s.logger.Info("pipeline stopped")
}

func (s *Service) workerLoop(ctx context.Context, workerID int) {
	logger := s.logger.With("worker_id", workerID)
	logger.Debug("worker started")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopped")
			return
		}
		if j, ok := s.store.DequeueNext(ctx); ok {
			s.processJob(ctx, logger, j)
			continue
		}
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		case <-s.store.Wake():
		case <-ticker.C:
			// Covers backoff expiry and rate-gate refill, which produce no
			// wake signal of their own.
		}
	}
}

// processJob runs one full attempt: extraction, parsing, composition,
// dispatch, sequentially. Stage failures go to the store's retry decision;
// they never propagate past here.
func (s *Service) processJob(ctx context.Context, logger *slog.Logger, j job.Job) {
	logger = logger.With("job_id", j.ID, "attempt", j.Attempt)

	if err := s.transition(ctx, j.ID, job.StatusExtractingText); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	extraction, err := s.extract(ctx, j)
	if err != nil {
		s.fail(ctx, logger, j.ID, job.NewProviderError(StageExtract, err))
		return
	}
	logger.Debug("stage ok", "stage", StageExtract,
		"method", extraction.Method, "confidence", extraction.Confidence)

	if err := s.transition(ctx, j.ID, job.StatusParsing); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	contact, err := s.parseContact(ctx, extraction.Text)
	if err != nil {
		s.fail(ctx, logger, j.ID, job.NewProviderError(StageParse, err))
		return
	}
	if err := s.store.AttachContact(ctx, j.ID, contact); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	logger.Debug("stage ok", "stage", StageParse,
		"name", contact.Name, "email", contact.Email, "confidence", contact.Confidence)

	if err := s.transition(ctx, j.ID, job.StatusComposing); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	content, err := s.composeEmail(ctx, contact)
	if err != nil {
		// Only reachable when the template fallback itself was unreachable.
		s.fail(ctx, logger, j.ID, job.NewValidationError(StageCompose, err))
		return
	}
	if err := s.store.AttachEmail(ctx, j.ID, content); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	logger.Debug("stage ok", "stage", StageCompose, "subject", content.Subject)

	if contact.Email == "" {
		s.fail(ctx, logger, j.ID, job.NewValidationError(StageSend,
			fmt.Errorf("contact has no email address")))
		return
	}
	if err := s.transition(ctx, j.ID, job.StatusSending); err != nil {
		s.fail(ctx, logger, j.ID, err)
		return
	}
	deliveryID, err := s.send(ctx, contact, content)
	if err != nil {
		s.fail(ctx, logger, j.ID, job.NewProviderError(StageSend, err))
		return
	}
	if err := s.store.MarkSent(ctx, j.ID, deliveryID); err != nil {
		logger.Error("mark sent failed", "error", err)
		s.fail(ctx, logger, j.ID, err)
		return
	}
	logger.Info("job completed", "delivery_id", deliveryID)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, status job.Status) error {
	return s.store.UpdateStatus(ctx, id, status, progressCheckpoints[status])
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, id uuid.UUID, cause error) {
	decision, err := s.store.RecordFailure(ctx, id, cause)
	if err != nil {
		logger.Error("record failure failed", "cause", cause, "error", err)
		return
	}
	if decision.Retry {
		logger.Warn("attempt failed, retry scheduled", "delay", decision.Delay, "cause", cause)
	} else {
		logger.Error("job failed permanently", "cause", cause)
	}
}

func (s *Service) extract(ctx context.Context, j job.Job) (ocr.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()
	return s.extractor.ExtractText(ctx, j.Payload.ImagePath, j.Payload.MIMEType)
}

func (s *Service) parseContact(ctx context.Context, rawText string) (parse.ContactRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()
	return s.parser.Parse(ctx, rawText, s.cfg.LanguageHint)
}

func (s *Service) composeEmail(ctx context.Context, contact parse.ContactRecord) (compose.EmailContent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()
	return s.composer.Compose(ctx, contact, s.cfg.Compose)
}

func (s *Service) send(ctx context.Context, contact parse.ContactRecord, content compose.EmailContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()
	return s.dispatcher.Dispatch(ctx, dispatch.Message{
		To:      contact.Email,
		Subject: content.Subject,
		Body:    content.Body,
	})
}
