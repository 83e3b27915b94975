package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/persistence"
	"github.com/iota-uz/iota-electoral/pkg/configuration"
)

type migrationRow struct {
	Version    int64  `json:"version"`
	Path       string `json:"path"`
	State      string `json:"state,omitempty"`
	AppliedAt  string `json:"applied_at,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the electoral schema migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (default: MIGRATIONS_DIR)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations and check the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, dir)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, dir)
		},
	})
	return cmd
}

func withProvider(ctx context.Context, dir string, fn func(p *goose.Provider, ready func() error) error) error {
	cfg := configuration.Use()
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	if _, err := os.Stat(dir); err != nil {
		return withCode(exitUsage, fmt.Errorf("migrations dir: %w", err))
	}

	db, err := openSQL(ctx, cfg.Database.Opts)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer db.Close()

	p, err := goose.NewProvider(goose.DialectPostgres, db.DB, os.DirFS(dir))
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("goose provider: %w", err))
	}
	return fn(p, func() error { return persistence.SchemaReady(ctx, db) })
}

func runMigrateUp(cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()
	return withProvider(ctx, dir, func(p *goose.Provider, ready func() error) error {
		results, err := p.Up(ctx)
		if err != nil {
			return withCode(exitDBWrite, fmt.Errorf("migrate up: %w", err))
		}
		if err := ready(); err != nil {
			return withCode(exitDB, err)
		}
		applied := make([]migrationRow, 0, len(results))
		for _, r := range results {
			applied = append(applied, migrationRow{
				Version:    r.Source.Version,
				Path:       r.Source.Path,
				DurationMS: r.Duration.Milliseconds(),
			})
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"applied":      applied,
			"schema_ready": true,
		})
	})
}

func runMigrateStatus(cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()
	return withProvider(ctx, dir, func(p *goose.Provider, _ func() error) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return withCode(exitDB, fmt.Errorf("migrate status: %w", err))
		}
		rows := make([]migrationRow, 0, len(statuses))
		for _, s := range statuses {
			row := migrationRow{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)}
			if !s.AppliedAt.IsZero() {
				row.AppliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			rows = append(rows, row)
		}
		return writeJSON(cmd.OutOrStdout(), rows)
	})
}
