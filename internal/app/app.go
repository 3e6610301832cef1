package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedHighlights/internal/classify"
	"FeedHighlights/internal/collector"
	"FeedHighlights/internal/config"
	"FeedHighlights/internal/digest"
	"FeedHighlights/internal/infrastructure/parser"
	"FeedHighlights/internal/infrastructure/preview"
	"FeedHighlights/internal/infrastructure/reddit"
	"FeedHighlights/internal/infrastructure/scheduler"
	"FeedHighlights/internal/infrastructure/status"
	"FeedHighlights/internal/infrastructure/storage"
	"FeedHighlights/internal/infrastructure/telegram"
	"FeedHighlights/internal/logging"
	"FeedHighlights/internal/ports"
	"FeedHighlights/internal/reconcile"
	"FeedHighlights/internal/scanner"
	"FeedHighlights/internal/usecase"
)

// Options adjust wiring for a single CLI invocation.
type Options struct {
	// ForceDryRun overrides the configured dry-run switch.
	ForceDryRun bool
	// RawPreview prints the Markdown source instead of rendering it.
	RawPreview bool
	// Out receives previews; stdout when nil.
	Out io.Writer
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	runs     *storage.RunRepository
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if opts.ForceDryRun {
		cfg.Target.DryRun = true
	}
	loc := cfg.Scheduler.Location()

	var client *reddit.Client
	if cfg.Source.Scanner == "api" || !cfg.Target.DryRun {
		client = reddit.New(reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
			APIBaseURL:   cfg.Reddit.APIBaseURL,
			TokenURL:     cfg.Reddit.TokenURL,
		}, baseLogger.With("component", "reddit"))
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewOldRedditScanner(nil, cfg.Source.HTMLBaseURL, cfg.Reddit.UserAgent))
	if client != nil {
		registry.Register(client)
	}
	source := parser.NewStrategySource(registry, cfg.Source.Scanner, baseLogger.With("component", "source"))

	classifier, err := classify.New(cfg.ScanCategories(), cfg.Classification.MinScore)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	campaignStart, campaignEnd := cfg.Campaign.Window()
	assembler := digest.New(digest.Options{
		SourceFeed:     cfg.Source.Subreddit,
		BaseTitle:      cfg.Digest.Title,
		WindowDays:     cfg.Source.WindowDays,
		WikiURL:        cfg.Digest.WikiURL,
		Footer:         cfg.Digest.Footer,
		ShowThumbnails: cfg.Digest.ShowThumbnails,
		Categories:     cfg.DisplayCategories(),
		Campaign: digest.Campaign{
			Name:  cfg.Campaign.Name,
			Body:  cfg.Campaign.Body,
			Start: campaignStart,
			End:   campaignEnd,
		},
		Location: loc,
	})

	deps := usecase.PipelineDeps{
		Collector:  collector.New(source, baseLogger.With("component", "collector")),
		Classifier: classifier,
		Assembler:  assembler,
		Previewer:  preview.NewTerminal(opts.Out, opts.RawPreview),
		Logger:     baseLogger.With("component", "pipeline"),
	}
	if client != nil {
		deps.Publisher = client
		deps.Flair = client
		deps.Reconciler = reconcile.New(client, client, cfg.Digest.Marker, baseLogger.With("component", "reconciler"))
	}

	application := &Application{cfg: cfg, logger: baseLogger}

	if cfg.Database.DSN != "" {
		runs, err := storage.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		application.runs = runs
		deps.Runs = runs
	}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	application.pipeline = usecase.NewPipeline(deps, usecase.PipelineOptions{
		SourceFeed:    cfg.Source.Subreddit,
		TargetFeed:    cfg.Target.Subreddit,
		ScanLimit:     cfg.Source.ScanLimit,
		WindowDays:    cfg.Source.WindowDays,
		DryRun:        cfg.Target.DryRun,
		ReplyTo:       cfg.Target.PostID,
		Flair:         cfg.Target.Flair,
		Sticky:        cfg.Sticky.Enabled,
		Slot:          cfg.Sticky.Slot(),
		SuggestedSort: cfg.Sticky.SuggestedSort,
	})
	return application, nil
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (usecase.Report, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.Run(ctx, now)
}

// Schedule runs the pipeline on the configured cron expression and serves the
// status endpoint until ctx is cancelled.
func (a *Application) Schedule(ctx context.Context) error {
	if err := scheduler.Validate(a.cfg.Scheduler.CronExpression); err != nil {
		return err
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"))
	jobs := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))

	var runs ports.RunRepository
	if a.runs != nil {
		runs = a.runs
	}
	server := status.NewServer(a.cfg.Status.Addr, runs,
		func() (time.Time, error) { return driver.Next(time.Now()) },
		a.logger.With("component", "status"))

	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Status.Addr != "" {
		g.Go(func() error { return server.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return jobs.Stop(stopCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases storage handles.
func (a *Application) Close() error {
	if a.runs == nil {
		return nil
	}
	return a.runs.Close()
}
