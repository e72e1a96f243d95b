// Package app wires configuration into a runnable pipeline service. Both
// binaries share this bootstrap.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"cardflow/internal/compose"
	"cardflow/internal/config"
	"cardflow/internal/dispatch"
	"cardflow/internal/jobstore"
	"cardflow/internal/llm"
	"cardflow/internal/ocr"
	"cardflow/internal/parse"
	"cardflow/internal/pipeline"
	"cardflow/internal/store"
)

// App bundles the constructed components and their cleanup.
type App struct {
	Config    *config.Config
	Store     *jobstore.Store
	Snapshots store.SnapshotStore
	Pipeline  *pipeline.Service
	Logger    *slog.Logger
}

// Build constructs the snapshot store, job store, provider clients and
// pipeline from cfg. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	snapshots, err := openSnapshots(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	jobs, err := jobstore.New(ctx, jobstore.Config{
		MaxOutstanding:  cfg.Pipeline.MaxOutstanding,
		Concurrency:     cfg.Pipeline.Concurrency,
		StartsPerWindow: cfg.Pipeline.StartsPerWindow,
		RateWindow:      cfg.RateWindow(),
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		BackoffBase:     cfg.BackoffBase(),
	}, snapshots, logger)
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}

	chat := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLMTimeout(),
	}, logger)

	parser := parse.NewParser(parse.NewOpenAIExtractor(chat, logger), logger)
	composer := compose.NewComposer(compose.NewOpenAIGenerator(chat, logger), logger)
	mailer := dispatch.NewMailer(dispatch.MailerConfig{
		APIKey:      cfg.Mail.APIKey,
		Endpoint:    cfg.Mail.Endpoint,
		FromAddress: cfg.Mail.FromAddress,
	}, logger)

	svc := pipeline.New(pipeline.Config{
		Workers:      cfg.Pipeline.Concurrency,
		StageTimeout: cfg.StageTimeout(),
		LanguageHint: parse.LangAuto,
		Compose: compose.Options{
			Tone:          compose.Tone(cfg.Email.Tone),
			Language:      compose.Language(cfg.Email.Language),
			CustomMessage: cfg.Email.CustomMessage,
			SenderName:    cfg.Email.SenderName,
			SenderCompany: cfg.Email.SenderCompany,
		},
	}, jobs, buildExtractor(cfg, logger), parser, composer, mailer, logger)

	return &App{
		Config:    cfg,
		Store:     jobs,
		Snapshots: snapshots,
		Pipeline:  svc,
		Logger:    logger,
	}, nil
}

// Close releases the snapshot backend.
func (a *App) Close() error { return a.Snapshots.Close() }

func openSnapshots(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.SnapshotStore, error) {
	switch cfg.Database.Backend {
	case "postgres":
		return store.OpenPostgres(ctx, store.PostgresConfig{DSN: cfg.Database.DSN}, logger)
	default:
		return store.OpenSQLite(cfg.Paths.DataDir, logger)
	}
}

func buildExtractor(cfg *config.Config, logger *slog.Logger) ocr.TextExtractor {
	var extractors []ocr.TextExtractor
	if cfg.OCR.VisionEndpoint != "" {
		extractors = append(extractors, ocr.NewVisionClient(ocr.VisionConfig{
			APIKey:   cfg.OCR.VisionAPIKey,
			Endpoint: cfg.OCR.VisionEndpoint,
			Timeout:  cfg.StageTimeout(),
		}, logger))
	}
	if cfg.OCR.TesseractFallback {
		extractors = append(extractors, ocr.NewTesseractExtractor(ocr.TesseractConfig{
			Languages:   cfg.OCR.TesseractLangs,
			TessdataDir: cfg.OCR.TessdataDir,
		}, logger))
	}
	return ocr.NewChain(logger, extractors...)
}
