package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promotoria/comisiones/cmd/comisiones/cli"
	"github.com/promotoria/comisiones/internal/app"
	settlementhttp "github.com/promotoria/comisiones/internal/settlement/http"
	"github.com/promotoria/comisiones/jobs"
)

const usage = `usage: comisiones <command> [flags]

commands:
  serve       run the HTTP API (default)
  migrate     apply database migrations
  cortes      print the cortes of a month
  import      import a receipt workbook
  reconcile   settle pending balances of a corte
  jobs        trigger | stats for the background queue
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, args := "serve", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	code := run(ctx, stop, command, args)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, stop context.CancelFunc, command string, args []string) int {
	if command == "cortes" {
		return cortes(args)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitError
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		return serve(ctx, stop, cfg, logger)
	case "migrate":
		return withServices(ctx, cfg, logger, func(svc *app.Services) int {
			if err := svc.Migrate(); err != nil {
				logger.Error("migrate", slog.Any("error", err))
				return cli.ExitError
			}
			logger.Info("migrations applied")
			return cli.ExitOK
		})
	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		opts := cli.ImportOptions{}
		fs.StringVar(&opts.Path, "file", "", "path of the receipt workbook (.xlsx)")
		fs.StringVar(&opts.Sheet, "sheet", "", "sheet name, first sheet when empty")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
		_ = fs.Parse(args)
		return withServices(ctx, cfg, logger, func(svc *app.Services) int {
			return cli.ImportCommand(ctx, svc.Settlement, opts)
		})
	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
		opts := cli.ReconcileOptions{}
		fs.IntVar(&opts.Year, "year", 0, "year of the corte, last closed corte when omitted")
		fs.IntVar(&opts.Month, "month", 0, "month of the corte (1-12)")
		fs.IntVar(&opts.Index, "index", 0, "1-based corte index within the month")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
		_ = fs.Parse(args)
		return withServices(ctx, cfg, logger, func(svc *app.Services) int {
			return cli.ReconcileCommand(ctx, svc.Settlement, opts)
		})
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return cli.ExitError
	}
}

func cortes(args []string) int {
	now := time.Now()
	fs := flag.NewFlagSet("cortes", flag.ExitOnError)
	opts := cli.CortesOptions{}
	fs.IntVar(&opts.Year, "year", now.Year(), "calendar year")
	fs.IntVar(&opts.Month, "month", int(now.Month()), "calendar month (1-12)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the cortes as JSON")
	_ = fs.Parse(args)
	return cli.CortesCommand(opts)
}

func withServices(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*app.Services) int) int {
	svc, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return cli.ExitError
	}
	defer svc.Close()
	return fn(svc)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "jobs: expected trigger or stats")
		return cli.ExitError
	}
	helper := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = helper.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ExitOnError)
		var payload jobs.ReconcilePeriodPayload
		fs.IntVar(&payload.Year, "year", 0, "year of the corte, last closed corte when omitted")
		fs.IntVar(&payload.Month, "month", 0, "month of the corte (1-12)")
		fs.IntVar(&payload.Index, "index", 0, "1-based corte index within the month")
		_ = fs.Parse(args[1:])
		info, err := helper.Trigger(ctx, payload)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return cli.ExitError
		}
		_, _ = fmt.Fprintf(os.Stdout, "encolada %s (%s) en %s\n", info.ID, info.Type, info.Queue)
		return cli.ExitOK
	case "stats":
		fs := flag.NewFlagSet("jobs stats", flag.ExitOnError)
		asJSON := fs.Bool("json", false, "print the stats as JSON")
		_ = fs.Parse(args[1:])
		stats, err := helper.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return cli.ExitError
		}
		if *asJSON {
			_ = json.NewEncoder(os.Stdout).Encode(stats)
			return cli.ExitOK
		}
		retrying, err := helper.ListRetrying(ctx, 10)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return cli.ExitError
		}
		cli.RenderStats(os.Stdout, stats, retrying)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return cli.ExitError
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	svc, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return cli.ExitError
	}
	defer svc.Close()

	if err := svc.Migrate(); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return cli.ExitError
	}
	svc.WatchInvalidations(ctx)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: svc.Metrics,
		API:     settlementhttp.NewHandler(logger, svc.Settlement, cfg.UploadMaxBytes),
		Jobs:    jobs.NewHandler(inspector, logger),
		Checks:  svc.Checks(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return cli.ExitError
	}
	return cli.ExitOK
}
