// Command critic runs one pipeline pass: refresh the access token, fetch the
// latest activities, generate critiques for the ones without a ledger entry,
// and upload pending critiques as activity descriptions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/config"
	"github.com/zjywill/StravaCritiques/internal/critique"
	"github.com/zjywill/StravaCritiques/internal/fetch"
	"github.com/zjywill/StravaCritiques/internal/ledger"
	"github.com/zjywill/StravaCritiques/internal/orchestrator"
	"github.com/zjywill/StravaCritiques/internal/strava"
	"github.com/zjywill/StravaCritiques/internal/token"
)

func main() {
	perPage := flag.Int("per-page", 1, "activities requested per page")
	maxPages := flag.Int("max-pages", 1, "maximum pages to fetch")
	maxUpload := flag.Int("max-upload", 0, "maximum uploads per run (0 = unlimited)")
	dryRun := flag.Bool("dry-run", false, "show what would be uploaded without calling the remote API")
	skipFetch := flag.Bool("skip-fetch", false, "reuse the persisted snapshot instead of fetching")
	skipGenerate := flag.Bool("skip-generate", false, "skip critique generation")
	skipUpload := flag.Bool("skip-upload", false, "skip uploading descriptions")
	regenerate := flag.Bool("regenerate-uploaded", false, "regenerate critiques that already have a ledger entry and re-upload them")
	tokenFile := flag.String("token-file", "", "explicit token file (default: newest file in the token directory)")
	snapshotFile := flag.String("snapshot-file", "", "snapshot file path override")
	ledgerFile := flag.String("ledger-file", "", "ledger file path override")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	defer logger.Sync()

	if *snapshotFile != "" {
		cfg.SnapshotFile = *snapshotFile
	}
	if *ledgerFile != "" {
		cfg.LedgerFile = *ledgerFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tokens token.Store
	if *tokenFile != "" {
		tokens = token.NewFileStore(*tokenFile)
	} else {
		tokens = token.NewDirStore(cfg.TokenDir)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		Endpoint:     strava.Endpoint,
	}
	refresher := token.NewRefresher(tokens, oauthCfg,
		token.WithSkew(cfg.TokenSkew),
		token.WithMaxRetries(cfg.MaxRetries),
		token.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		token.WithLogger(logger),
	)

	client := strava.NewClient(
		strava.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		strava.WithRateLimit(cfg.RateLimitRPS),
		strava.WithMaxAttempts(cfg.MaxRetries+1),
		strava.WithLogger(logger),
	)

	fetcher := fetch.NewFetcher(client, fetch.NewSnapshotStore(cfg.SnapshotFile), logger)

	led, err := ledger.Open(ctx, ledger.NewFileStorage(cfg.LedgerFile), ledger.WithLogger(logger))
	if err != nil {
		logger.Error("ledger unusable", zap.Error(err))
		os.Exit(1)
	}

	var generator critique.Generator
	if !*skipGenerate {
		generator, err = critique.NewOpenAIGenerator(cfg.OpenAIAPIKey,
			critique.WithBaseURL(cfg.OpenAIBaseURL),
			critique.WithModel(cfg.OpenAIModel),
			critique.WithSystemPrompt(cfg.SystemPrompt),
			critique.WithLogger(logger),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v (set ONE_API_KEY or OPENAI_API_KEY, or pass -skip-generate)\n", err)
			os.Exit(1)
		}
	}

	orch := orchestrator.New(tokens, refresher, fetcher, generator, led, client, logger)
	summary, err := orch.Run(ctx, orchestrator.Options{
		PerPage:            *perPage,
		MaxPages:           *maxPages,
		MaxUpload:          *maxUpload,
		DryRun:             *dryRun,
		SkipFetch:          *skipFetch,
		SkipGenerate:       *skipGenerate,
		SkipUpload:         *skipUpload,
		RegenerateUploaded: *regenerate,
	})

	printSummary(summary, *dryRun)

	if err != nil {
		var stageErr *orchestrator.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "run failed at stage %s: %v\n", stageErr.Stage, stageErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if os.Getenv("APP_ENV") == "development" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func printSummary(s orchestrator.Summary, dryRun bool) {
	fmt.Printf("run %s\n", s.RunID)
	fmt.Printf("  activities fetched:  %d\n", s.ActivitiesFetched)
	fmt.Printf("  critiques generated: %d (skipped %d, failed %d)\n",
		s.CritiquesGenerated, s.GenerationSkipped, s.GenerationFailed)
	if dryRun {
		fmt.Printf("  would upload:        %d\n", len(s.Upload.WouldUpload))
		for _, id := range s.Upload.WouldUpload {
			fmt.Printf("    activity %d\n", id)
		}
	} else {
		fmt.Printf("  uploads:             %d attempted, %d succeeded, %d failed, %d skipped\n",
			s.Upload.Attempted, s.Upload.Succeeded, s.Upload.Failed, s.Upload.Skipped)
	}
	for _, item := range s.Upload.Errors {
		fmt.Printf("  upload error: activity %d: %v\n", item.ActivityID, item.Err)
	}
}
