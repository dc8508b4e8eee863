package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/storage"
)

// Build assembles a server and its services from the application config.
// The quick checker and the order store are optional: when they cannot be
// created the failure is logged and their endpoints answer 503.
func Build(ctx context.Context, cfg *config.Config) (*Server, error) {
	pCfg := cfg.ToPipelineConfig()
	pCfg.KeepImages = true
	checker, err := pipeline.NewBuilderFromConfig(pCfg).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build checker: %w", err)
	}

	deps := Dependencies{Checker: checker, ModelsDir: cfg.ResolvedModelsDir()}

	if quick, err := quickcheck.New(cfg.ToQuickCheckConfig()); err != nil {
		slog.Warn("Quick check disabled", "error", err)
	} else {
		deps.Quick = quick
	}

	if store, err := storage.New(ctx, cfg.ToStorageConfig()); err != nil {
		slog.Warn("Order storage disabled", "provider", cfg.Storage.Provider, "error", err)
	} else {
		deps.Orders = storage.NewOrderStore(store, cfg.ToStorageConfig())
	}

	layout, err := printlayout.New(cfg.Layout, cfg.ICAO)
	if err != nil {
		_ = checker.Close()
		return nil, fmt.Errorf("failed to create print layout: %w", err)
	}
	deps.Layout = layout

	return NewServer(cfg.Server, deps)
}
