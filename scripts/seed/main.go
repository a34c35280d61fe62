package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/promotoria/comisiones/internal/app"
	"github.com/promotoria/comisiones/internal/platform/db"
)

// directory is the YAML layout of a development seed file.
type directory struct {
	Agents []struct {
		Key        int    `yaml:"key"`
		Name       string `yaml:"name"`
		Status     string `yaml:"status"`
		Supervisor int    `yaml:"supervisor"`
		Bank       string `yaml:"bank"`
		Account    string `yaml:"account"`
	} `yaml:"agents"`
	Policies map[string]int `yaml:"policies"`
}

func main() {
	path := flag.String("file", "scripts/seed/directory.yaml", "seed file with agents and policies")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	raw, err := os.ReadFile(*path)
	if err != nil {
		logger.Error("read seed file", slog.Any("error", err))
		os.Exit(1)
	}
	var dir directory
	if err := yaml.Unmarshal(raw, &dir); err != nil {
		logger.Error("parse seed file", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, a := range dir.Agents {
			status := a.Status
			if status == "" {
				status = "active"
			}
			var supervisor *int
			if a.Supervisor > 0 {
				supervisor = &a.Supervisor
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO agents (agent_key, name, status, supervisor_key, bank_name, bank_account)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (agent_key) DO UPDATE SET
    name = EXCLUDED.name, status = EXCLUDED.status, supervisor_key = EXCLUDED.supervisor_key,
    bank_name = EXCLUDED.bank_name, bank_account = EXCLUDED.bank_account`,
				a.Key, a.Name, status, supervisor, a.Bank, a.Account); err != nil {
				return fmt.Errorf("seed agent %d: %w", a.Key, err)
			}
		}
		for policy, agent := range dir.Policies {
			if _, err := tx.Exec(ctx, `
INSERT INTO policies (policy_number, agent_key) VALUES ($1, $2)
ON CONFLICT (policy_number) DO UPDATE SET agent_key = EXCLUDED.agent_key`, policy, agent); err != nil {
				return fmt.Errorf("seed policy %s: %w", policy, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete",
		slog.Int("agents", len(dir.Agents)),
		slog.Int("policies", len(dir.Policies)),
		slog.String("at", time.Now().Format(time.RFC3339)))
}
