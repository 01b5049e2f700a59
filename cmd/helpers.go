package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/info757/estimai-cli/internal/resilience"
	"github.com/info757/estimai-cli/internal/store"
	"github.com/info757/estimai-cli/pkg/estimai"
)

func initTokenStore() estimai.TokenStore {
	if cfg.Auth.Token != "" {
		return estimai.NewMemoryTokenStore(cfg.Auth.Token)
	}
	return estimai.NewFileTokenStore(cfg.Auth.TokenPath)
}

func initClient() estimai.Client {
	return estimai.NewClient(initTokenStore(),
		estimai.WithBaseURL(cfg.API.BaseURL),
		estimai.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.API.TimeoutSecs) * time.Second}),
		estimai.WithRateLimit(cfg.API.RateLimit),
	)
}

func retryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.API.MaxRetries > 0 {
		rc.MaxAttempts = cfg.API.MaxRetries
	}
	if cfg.API.RetryBaseMS > 0 {
		rc.BaseDelay = time.Duration(cfg.API.RetryBaseMS) * time.Millisecond
	}
	if cfg.API.RetryMaxSecs > 0 {
		rc.MaxDelay = time.Duration(cfg.API.RetryMaxSecs) * time.Second
	}
	return rc
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "estimai-audit.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func parseStage(s string) (estimai.Stage, error) {
	stage := estimai.Stage(s)
	if !stage.Valid() {
		return "", eris.Errorf("unknown stage %q (want takeoff or estimate)", s)
	}
	return stage, nil
}
