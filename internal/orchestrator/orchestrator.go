// Package orchestrator sequences one pipeline run: refresh token, fetch
// activities, generate missing critiques, upload pending ones.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zjywill/StravaCritiques/internal/critique"
	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/fetch"
	"github.com/zjywill/StravaCritiques/internal/ledger"
	"github.com/zjywill/StravaCritiques/internal/observability"
	"github.com/zjywill/StravaCritiques/internal/token"
	"github.com/zjywill/StravaCritiques/internal/upload"
)

// Stage names the pipeline stage a failure is attributed to.
type Stage string

const (
	StageToken    Stage = "token"
	StageFetch    Stage = "fetch"
	StageGenerate Stage = "generate"
	StageUpload   Stage = "upload"
)

// StageError is the terminal failure of a run: which stage broke and why.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options selects what one run does. Zero values mean "run every stage with
// small defaults".
type Options struct {
	PerPage            int
	MaxPages           int
	MaxUpload          int
	DryRun             bool
	SkipFetch          bool
	SkipGenerate       bool
	SkipUpload         bool
	RegenerateUploaded bool
}

// Summary is the terminal report of a run.
type Summary struct {
	RunID              string
	ActivitiesFetched  int
	CritiquesGenerated int
	GenerationSkipped  int
	GenerationFailed   int
	Upload             upload.Report
}

// Orchestrator wires the pipeline stages together. Dependencies are injected
// so tests can run the whole state machine against in-memory fakes.
type Orchestrator struct {
	tokens    token.Store
	refresher *token.Refresher
	fetcher   *fetch.Fetcher
	generator critique.Generator
	ledger    *ledger.Ledger
	uploadAPI upload.API
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs an Orchestrator. generator may be nil when every run skips
// the generate stage.
func New(
	tokens token.Store,
	refresher *token.Refresher,
	fetcher *fetch.Fetcher,
	generator critique.Generator,
	l *ledger.Ledger,
	uploadAPI upload.API,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		tokens:    tokens,
		refresher: refresher,
		fetcher:   fetcher,
		generator: generator,
		ledger:    l,
		uploadAPI: uploadAPI,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one pipeline pass. The returned error, when non-nil, is a
// *StageError naming the failing stage; the Summary reflects everything that
// completed before the failure. All durable artifacts written before a
// failure stay intact for the next run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := o.logger.With(zap.String("run_id", summary.RunID))

	// Idle -> TokenReady
	needToken := !opts.SkipFetch || !opts.SkipUpload
	var cred domain.Credential
	if needToken {
		var err error
		cred, err = o.tokens.Load(ctx)
		if err != nil {
			return summary, &StageError{Stage: StageToken, Err: err}
		}
		cred, err = o.refresher.EnsureFresh(ctx, cred)
		if err != nil {
			return summary, &StageError{Stage: StageToken, Err: err}
		}
	}

	// TokenReady -> ActivitiesFetched
	activities, err := o.fetchStage(ctx, &cred, opts, logger)
	if err != nil {
		return summary, &StageError{Stage: StageFetch, Err: err}
	}
	summary.ActivitiesFetched = len(activities)

	// ActivitiesFetched -> CritiquesGenerated
	if !opts.SkipGenerate {
		if err := o.generateStage(ctx, activities, opts, &summary, logger); err != nil {
			return summary, &StageError{Stage: StageGenerate, Err: err}
		}
	}

	// CritiquesGenerated -> UploadsAttempted
	if !opts.SkipUpload {
		uploader := upload.NewUploader(o.uploadAPI, o.ledger,
			upload.WithMaxCount(opts.MaxUpload),
			upload.WithDryRun(opts.DryRun),
			upload.WithLogger(logger),
			upload.WithClock(o.now),
		)
		report, err := uploader.Run(ctx, cred.AccessToken)
		summary.Upload = report
		if err != nil {
			return summary, &StageError{Stage: StageUpload, Err: err}
		}
	}

	logger.Info("run complete",
		zap.Int("activities_fetched", summary.ActivitiesFetched),
		zap.Int("critiques_generated", summary.CritiquesGenerated),
		zap.Int("uploads_attempted", summary.Upload.Attempted),
		zap.Int("uploads_succeeded", summary.Upload.Succeeded),
	)
	return summary, nil
}

// fetchStage either loads the previous snapshot (skip-fetch) or fetches a
// fresh batch. When the remote API reports an expired authorization mid-fetch
// the token is refreshed and the fetch restarted exactly once.
func (o *Orchestrator) fetchStage(ctx context.Context, cred *domain.Credential, opts Options, logger *zap.Logger) ([]domain.Activity, error) {
	if opts.SkipFetch {
		activities, err := o.fetcher.LoadSnapshot()
		if err != nil {
			return nil, fmt.Errorf("skip-fetch requested but snapshot unusable: %w", err)
		}
		logger.Info("fetch skipped, using persisted snapshot", zap.Int("count", len(activities)))
		return activities, nil
	}

	activities, err := o.fetcher.Fetch(ctx, cred.AccessToken, opts.PerPage, opts.MaxPages)
	if err == nil {
		return activities, nil
	}
	if !errors.Is(err, domain.ErrAuthExpired) {
		return nil, err
	}

	logger.Warn("authorization rejected mid-fetch, refreshing token once", zap.Error(err))
	refreshed, refreshErr := o.refresher.Refresh(ctx, *cred)
	if refreshErr != nil {
		return nil, refreshErr
	}
	*cred = refreshed
	return o.fetcher.Fetch(ctx, cred.AccessToken, opts.PerPage, opts.MaxPages)
}

// generateStage fills ledger gaps. Generation failures are per-item: the
// activity is skipped, reported, and retried on the next run.
func (o *Orchestrator) generateStage(ctx context.Context, activities []domain.Activity, opts Options, summary *Summary, logger *zap.Logger) error {
	if o.generator == nil {
		return fmt.Errorf("no critique generator configured")
	}

	pending := o.ledger.PendingGeneration(activities, opts.RegenerateUploaded)
	summary.GenerationSkipped = len(activities) - len(pending)

	for i, act := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("generating critique",
			zap.Int64("activity_id", act.ID),
			zap.Int("index", i+1),
			zap.Int("total", len(pending)))

		text, err := o.generator.Generate(ctx, act)
		if err != nil {
			if !errors.Is(err, domain.ErrGeneration) {
				return err
			}
			logger.Error("critique generation failed, will retry next run",
				zap.Int64("activity_id", act.ID), zap.Error(err))
			observability.RecordGenerationFailure()
			summary.GenerationFailed++
			continue
		}
		if err := o.ledger.Upsert(ctx, act.ID, text); err != nil {
			return err
		}
		observability.RecordCritiqueGenerated()
		summary.CritiquesGenerated++
	}
	return nil
}
