package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"FeedHighlights/internal/classify"
	"FeedHighlights/internal/collector"
	"FeedHighlights/internal/digest"
	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
	"FeedHighlights/internal/reconcile"
)

var (
	// ErrPublish means the destination rejected the digest; nothing downstream ran.
	ErrPublish = errors.New("publish failed")
	// ErrReconcileFailed means the digest was published but the sticky slot could not be reached.
	ErrReconcileFailed = errors.New("sticky reconciliation failed")
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Collector  *collector.Collector
	Classifier *classify.Classifier
	Assembler  *digest.Assembler
	Publisher  ports.Publisher
	Flair      ports.FlairSetter
	Reconciler *reconcile.Reconciler
	Previewer  ports.Previewer
	Runs       ports.RunRepository
	Notifier   ports.Notifier
	Logger     *slog.Logger
	Clock      func() time.Time
}

// PipelineOptions are the per-deployment switches of a run.
type PipelineOptions struct {
	SourceFeed    string
	TargetFeed    string
	ScanLimit     int
	WindowDays    int
	DryRun        bool
	ReplyTo       string
	Flair         string
	Sticky        bool
	Slot          domain.Slot
	SuggestedSort string
}

// Report summarises one run for the caller, the run history and notifications.
type Report struct {
	RunID        string
	Status       domain.RunStatus
	Collected    collector.Stats
	Classified   classify.Stats
	Candidates   int
	Selected     int
	Digest       domain.Digest
	SubmissionID string
	Reconcile    *reconcile.Report
	Warnings     []string
}

// Pipeline implements the weekly highlights workflow.
type Pipeline struct {
	collector  *collector.Collector
	classifier *classify.Classifier
	assembler  *digest.Assembler
	publisher  ports.Publisher
	flair      ports.FlairSetter
	reconciler *reconcile.Reconciler
	previewer  ports.Previewer
	runs       ports.RunRepository
	notifier   ports.Notifier
	logger     *slog.Logger
	clock      func() time.Time
	opts       PipelineOptions
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	if opts.TargetFeed == "" {
		opts.TargetFeed = opts.SourceFeed
	}
	return &Pipeline{
		collector:  deps.Collector,
		classifier: deps.Classifier,
		assembler:  deps.Assembler,
		publisher:  deps.Publisher,
		flair:      deps.Flair,
		reconciler: deps.Reconciler,
		previewer:  deps.Previewer,
		runs:       deps.Runs,
		notifier:   deps.Notifier,
		logger:     logger,
		clock:      clock,
		opts:       opts,
	}
}

// Run collects, classifies, assembles and then previews, replies or publishes.
// The returned error is nil for published, replied, dry-run and nothing-to-publish runs.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	log := p.logger.With("run_id", rep.RunID)

	err := p.run(ctx, now, log, &rep)
	p.record(ctx, now, log, rep)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, now time.Time, log *slog.Logger, rep *Report) error {
	if p.collector == nil || p.classifier == nil || p.assembler == nil {
		return fmt.Errorf("pipeline is not fully wired")
	}

	log.Info("run started",
		"source", p.opts.SourceFeed,
		"target", p.opts.TargetFeed,
		"dry_run", p.opts.DryRun,
		"sticky", p.opts.Sticky,
		"slot", p.opts.Slot.String(),
		"suggested_sort", p.opts.SuggestedSort,
	)

	collected, err := p.collector.Collect(ctx, collector.Request{
		Subreddit: p.opts.SourceFeed,
		Window:    collector.TrailingWindow(now, p.opts.WindowDays),
		ScanLimit: p.opts.ScanLimit,
	})
	if err != nil {
		rep.Status = domain.RunCollectFailed
		if errors.Is(err, collector.ErrSourceInaccessible) {
			rep.Status = domain.RunSourceInaccessible
		}
		return fmt.Errorf("collect r/%s: %w", p.opts.SourceFeed, err)
	}
	rep.Collected = collected.Stats
	rep.Candidates = len(collected.Candidates)

	if len(collected.Candidates) == 0 {
		rep.Status = domain.RunNothingToPublish
		log.Info("nothing to publish: no items in window", "scanned", collected.Stats.Scanned)
		return nil
	}

	classified := p.classifier.Classify(collected.Candidates)
	rep.Classified = classified.Stats
	rep.Selected = classified.Sections.Total()
	for key, n := range classified.Stats.Matched {
		log.Debug("category matched", "category", key, "matched", n,
			"below_min_score", classified.Stats.DroppedForScore[key], "kept", len(classified.Sections[key]))
	}
	log.Info("candidates classified",
		"candidates", rep.Candidates,
		"selected", rep.Selected,
		"unmatched", classified.Stats.Unmatched,
	)

	rep.Digest = p.assembler.Build(classified.Sections, now)

	switch {
	case p.opts.DryRun:
		rep.Status = domain.RunDryRun
		if p.previewer == nil {
			return nil
		}
		if err := p.previewer.Preview(ctx, rep.Digest); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		return nil

	case p.opts.ReplyTo != "":
		return p.reply(ctx, log, rep)

	default:
		return p.publish(ctx, log, rep)
	}
}

func (p *Pipeline) reply(ctx context.Context, log *slog.Logger, rep *Report) error {
	if p.publisher == nil {
		rep.Status = domain.RunPublishFailed
		return fmt.Errorf("%w: publisher is not configured", ErrPublish)
	}
	if err := p.publisher.Reply(ctx, p.opts.ReplyTo, rep.Digest.Body); err != nil {
		rep.Status = domain.RunPublishFailed
		return fmt.Errorf("%w: reply to %s: %w", ErrPublish, p.opts.ReplyTo, err)
	}
	rep.Status = domain.RunReplied
	rep.SubmissionID = p.opts.ReplyTo
	log.Info("comment added", "url", "https://redd.it/"+p.opts.ReplyTo)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, rep *Report) error {
	if p.publisher == nil {
		rep.Status = domain.RunPublishFailed
		return fmt.Errorf("%w: publisher is not configured", ErrPublish)
	}

	id, err := p.publisher.Submit(ctx, p.opts.TargetFeed, rep.Digest)
	if err != nil {
		rep.Status = domain.RunPublishFailed
		return fmt.Errorf("%w: submit to r/%s: %w", ErrPublish, p.opts.TargetFeed, err)
	}
	rep.Status = domain.RunPublished
	rep.SubmissionID = id
	log.Info("digest posted", "url", "https://redd.it/"+id)

	if p.opts.Flair != "" && p.flair != nil {
		if err := p.flair.ApplyFlair(ctx, p.opts.TargetFeed, id, p.opts.Flair); err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("flair: %v", err))
			log.Warn("could not set post flair", "flair", p.opts.Flair, "error", err)
		} else {
			log.Info("post flair set", "flair", p.opts.Flair)
		}
	}

	if !p.opts.Sticky || p.reconciler == nil {
		return nil
	}

	result := p.reconciler.Reconcile(ctx, reconcile.Request{
		Subreddit:     p.opts.TargetFeed,
		NewItemID:     id,
		Slot:          p.opts.Slot,
		SuggestedSort: p.opts.SuggestedSort,
	})
	rep.Reconcile = &result
	rep.Warnings = append(rep.Warnings, result.WarningStrings()...)

	if result.State == reconcile.StateFailed {
		log.Error("sticky slot reconciliation failed", "trace", traceString(result.Trace), "error", result.Err)
		return fmt.Errorf("%w: %w", ErrReconcileFailed, result.Err)
	}
	if result.Degraded() {
		log.Warn("sticky slot needs manual attention", "warnings", len(result.Warnings))
	}
	return nil
}

// record persists the run and notifies; both are best-effort.
func (p *Pipeline) record(ctx context.Context, started time.Time, log *slog.Logger, rep Report) {
	run := domain.RunRecord{
		ID:           rep.RunID,
		StartedAt:    started,
		FinishedAt:   p.clock(),
		Status:       rep.Status,
		SourceFeed:   p.opts.SourceFeed,
		TargetFeed:   p.opts.TargetFeed,
		SubmissionID: rep.SubmissionID,
		Title:        rep.Digest.Title,
		Candidates:   rep.Candidates,
		Selected:     rep.Selected,
		Warnings:     rep.Warnings,
	}
	if rep.Reconcile != nil {
		run.ReconcileState = rep.Reconcile.State.String()
	}

	if p.runs != nil {
		if err := p.runs.SaveRun(ctx, run); err != nil {
			log.Warn("could not persist run", "error", err)
		}
	}

	if p.notifier != nil && rep.Status != domain.RunDryRun {
		if err := p.notifier.PublishDigest(ctx, Summary(run)); err != nil {
			log.Warn("could not send run notification", "error", err)
		}
	}
}

// Summary renders a short plain-text report of a run.
func Summary(run domain.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "r/%s highlights: %s\n", run.SourceFeed, run.Status)
	fmt.Fprintf(&b, "selected %d of %d candidates\n", run.Selected, run.Candidates)
	if run.SubmissionID != "" {
		fmt.Fprintf(&b, "https://redd.it/%s\n", run.SubmissionID)
	}
	if run.ReconcileState != "" {
		fmt.Fprintf(&b, "sticky: %s\n", run.ReconcileState)
	}
	for _, w := range run.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func traceString(trace []reconcile.State) string {
	names := make([]string, 0, len(trace))
	for _, s := range trace {
		names = append(names, s.String())
	}
	return strings.Join(names, " > ")
}
