package cmd

import (
	"context"

	"github.com/example/slotscout/internal/archive"
	"github.com/example/slotscout/internal/config"
	"github.com/example/slotscout/internal/platform"
	"github.com/example/slotscout/internal/platform/ayo"
	"github.com/example/slotscout/internal/platform/gelora"
)

const serviceName = "slotscout"

type adapters struct {
	registry platform.Registry
	ayo      *ayo.Adapter
}

func buildAdapters(cfg config.Config) (adapters, error) {
	a, err := ayo.New(ayo.Options{
		BaseURL:    cfg.AYO.BaseURL,
		Timeout:    cfg.AYO.Timeout,
		TracerName: serviceName + "/ayo",
	})
	if err != nil {
		return adapters{}, err
	}
	g := gelora.New(gelora.Options{
		BaseURL:    cfg.Gelora.BaseURL,
		Timeout:    cfg.Gelora.Timeout,
		TracerName: serviceName + "/gelora",
	})
	return adapters{registry: platform.NewRegistry(a, g), ayo: a}, nil
}

func openArchive(ctx context.Context, cfg config.Config) (archive.Archive, error) {
	return archive.Open(ctx, archive.Options{DatabaseURL: cfg.DatabaseURL, Path: cfg.ArchivePath})
}
