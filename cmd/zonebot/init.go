package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dnsops/zonebot/internal/assistant"
)

// runInit handles the "zonebot init" subcommand. It provisions the
// assistants zonebot relies on and records their ids in the assistants
// file. Slots that already hold a valid id are left alone, so running
// init repeatedly is safe and never duplicates assistants.
func runInit(ctx context.Context, w io.Writer, configPath string) error {
	logger := newLogger(w, slog.LevelInfo)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("config %s: openai.api_key is required", cfgPath)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	path := cfg.AssistantsPath()
	registry, err := assistant.LoadRegistry(path)
	if err != nil {
		return err
	}

	client := assistant.NewClient(cfg.OpenAI.APIKey, logger)
	created, err := registry.Provision(ctx, client, cfg.OpenAI.Model, logger)
	if err != nil {
		return fmt.Errorf("provision assistants: %w", err)
	}

	if err := registry.Save(path); err != nil {
		return fmt.Errorf("save assistants file: %w", err)
	}

	if created == 0 {
		fmt.Fprintf(w, "All assistants already provisioned (%s)\n", path)
	} else {
		fmt.Fprintf(w, "Provisioned %d assistant(s), ids written to %s\n", created, path)
	}
	return nil
}
