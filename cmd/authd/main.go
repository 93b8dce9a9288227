// Command authd runs the one-time bootstrap consent flow: a local web app
// that redirects to the provider's authorize page, exchanges the returned
// code, and persists the first credential record for the pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/bootstrap"
	"github.com/zjywill/StravaCritiques/internal/config"
	"github.com/zjywill/StravaCritiques/internal/strava"
	"github.com/zjywill/StravaCritiques/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	defer logger.Sync()

	store := token.NewDirStore(cfg.TokenDir)
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RedirectURL:  cfg.StravaRedirectURI,
		Endpoint:     strava.Endpoint,
	}

	mux := http.NewServeMux()
	bootstrap.NewHandler(oauthCfg, store, cfg.StravaScope, logger).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := bootstrap.NewServer(bootstrap.ServerConfig{Address: cfg.AuthHTTPAddress}, mux)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("consent server listening",
			zap.String("address", cfg.AuthHTTPAddress),
			zap.String("login_url", "http://localhost"+cfg.AuthHTTPAddress+"/login"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
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
