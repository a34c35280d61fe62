package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/commission"
	"github.com/promotoria/comisiones/internal/observability"
	"github.com/promotoria/comisiones/internal/platform/cache"
	"github.com/promotoria/comisiones/internal/platform/db"
	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/refdata"
	"github.com/promotoria/comisiones/internal/settlement"
)

// Services holds the connections and the application service shared by the
// server, the worker and the CLI.
type Services struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Metrics    *observability.Metrics
	Refdata    *cache.Versioned
	Reports    *cache.Versioned
	Settlement *settlement.Service
	logger     *slog.Logger
}

// NewServices connects to PostgreSQL and Redis and wires the settlement service.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	rates := commission.DefaultRates()
	if cfg.RatesFile != "" {
		loaded, err := commission.LoadRatesFile(cfg.RatesFile)
		if err != nil {
			return nil, err
		}
		rates = loaded
		logger.Info("commission rates loaded", slog.String("file", cfg.RatesFile))
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	refdataCache := cache.NewVersioned(client, "refdata", cfg.RefdataCacheTTL)
	reportsCache := cache.NewVersioned(client, "reports", cfg.ReportsCacheTTL)

	receiptRepo := receipts.NewRepository(pool)
	reconciler := balances.NewReconciler(balances.NewRepository(pool), receiptRepo, reportsCache, logger)
	reconciler.WithRecorder(metrics.Jobs())

	svc := settlement.NewService(settlement.Deps{
		Receipts:    receiptRepo,
		Directory:   refdata.NewLoader(refdata.NewRepository(pool), refdataCache, logger),
		Reconciler:  reconciler,
		Engine:      commission.NewEngine(rates),
		Reports:     reportsCache,
		Invalidator: reportsCache,
		Upload:      cfg.UploadConfig(),
		Recorder:    metrics.Jobs(),
		Logger:      logger,
	})
	return &Services{
		Pool:       pool,
		Redis:      client,
		Metrics:    metrics,
		Refdata:    refdataCache,
		Reports:    reportsCache,
		Settlement: svc,
		logger:     logger,
	}, nil
}

// Migrate applies pending schema migrations.
func (s *Services) Migrate() error {
	if err := db.Migrate(s.Pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Checks returns the readiness probes of the backing services.
func (s *Services) Checks() map[string]Pinger {
	return map[string]Pinger{
		"postgres": PingFunc(s.Pool.Ping),
		"redis": PingFunc(func(ctx context.Context) error {
			return s.Redis.Ping(ctx).Err()
		}),
	}
}

// WatchInvalidations logs cache version bumps published by any process until
// ctx is cancelled.
func (s *Services) WatchInvalidations(ctx context.Context) {
	for _, c := range []*cache.Versioned{s.Refdata, s.Reports} {
		channel := c.Channel()
		err := c.Listen(ctx, func(version int64) {
			s.logger.Info("cache invalidated", slog.String("channel", channel), slog.Int64("version", version))
		})
		if err != nil {
			s.logger.Warn("cache listener", slog.String("channel", channel), slog.Any("error", err))
		}
	}
}

// Close releases the connections.
func (s *Services) Close() {
	if err := s.Redis.Close(); err != nil {
		s.logger.Warn("redis close", slog.Any("error", err))
	}
	s.Pool.Close()
}
