package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/config"
	"github.com/ent0n29/tasklist/internal/generation"
	"github.com/ent0n29/tasklist/internal/httpapi"
	"github.com/ent0n29/tasklist/internal/identity"
	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/store"
	"github.com/ent0n29/tasklist/internal/todo"
)

// ErrConfigMissing is reported when no document store is configured. The
// service still starts; every client stays empty and mutations are no-ops.
var ErrConfigMissing = errors.New("document store config is missing")

type BuildResult struct {
	Config         config.Config
	API            *httpapi.Server
	Gateway        *todo.Gateway
	Metrics        *observability.Metrics
	StoreMode      string
	GenerationMode string

	// Cleanup drains in-flight writes and releases the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, storeMode, err := store.NewStore(ctx, store.Config{
		URL:      cfg.StoreURL,
		Notifier: cfg.StoreNotifier,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	if st == nil {
		log.WithError(ErrConfigMissing).Error("STORE_URL is not set, task list is unavailable")
	} else {
		log.WithField("mode", storeMode).Info("document store ready")
	}

	generator, generationMode, err := generation.NewClient(generation.Config{
		Mode:    cfg.GenerationMode,
		APIURL:  cfg.GenerationAPIURL,
		APIKey:  cfg.GenerationAPIKey,
		Model:   cfg.GenerationModel,
		Timeout: cfg.GenerationTimeout,
	})
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, fmt.Errorf("generation client init failed: %w", err)
	}
	log.WithField("mode", generationMode).Info("generation client ready")

	gateway := todo.NewGateway(st, cfg.AppID, metrics)

	var issuer httpapi.TokenIssuer
	if strings.TrimSpace(cfg.AuthSigningKey) != "" {
		issuer = identity.NewLocalProvider(cfg.AuthSigningKey, "")
	} else {
		log.Warn("AUTH_SIGNING_KEY is not set, bearer tokens are rejected and clients sign in anonymously")
	}

	api := httpapi.New(cfg, httpapi.Deps{
		NewClient: func() *todo.Client {
			return todo.NewClient(todo.Options{
				Gateway:      gateway,
				Provider:     identity.NewLocalProvider(cfg.AuthSigningKey, ""),
				Generator:    generator,
				Metrics:      metrics,
				DeleteWindow: cfg.DeleteConfirmWindow,
			})
		},
		Issuer:         issuer,
		Metrics:        metrics,
		StoreMode:      storeMode,
		GenerationMode: generationMode,
	})

	cleanup := func() error {
		gateway.Wait()
		if st == nil {
			return nil
		}
		return st.Close()
	}

	return &BuildResult{
		Config:         cfg,
		API:            api,
		Gateway:        gateway,
		Metrics:        metrics,
		StoreMode:      storeMode,
		GenerationMode: generationMode,
		Cleanup:        cleanup,
	}, nil
}
