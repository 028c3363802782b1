package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolstudy/internal/achievement"
	"github.com/conorfennell/knolstudy/internal/config"
	"github.com/conorfennell/knolstudy/internal/importer"
	"github.com/conorfennell/knolstudy/internal/integrity"
	"github.com/conorfennell/knolstudy/internal/metrics"
	"github.com/conorfennell/knolstudy/internal/session"
	"github.com/conorfennell/knolstudy/internal/stats"
	"github.com/conorfennell/knolstudy/internal/storage"
	"github.com/conorfennell/knolstudy/internal/streak"
	"github.com/conorfennell/knolstudy/internal/study"
	"github.com/conorfennell/knolstudy/internal/web"
)

const usage = `Usage: knolstudy [flags] <command> [args]

Commands:
  serve            Run the HTTP API
  import <source>  Import decks from a directory or git URL
  stats            Print study statistics as JSON
  validate         Check stored data for integrity issues

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "knolstudy:", err)
		os.Exit(1)
	}
}

// app holds everything the subcommands share.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	svc     *study.Service
	stats   *stats.Aggregator
	streaks *streak.Tracker
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("knolstudy", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Debug("database opened", "path", cfg.DB)

	a := newApp(cfg, logger, db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := flags.Arg(0); cmd {
	case "serve":
		return a.serve(ctx)
	case "import":
		if flags.NArg() < 2 {
			return errors.New("import requires a directory or git URL")
		}
		rep, err := a.svc.Import(ctx, flags.Arg(1))
		if err != nil {
			return err
		}
		return writeJSON(stdout, rep)
	case "stats":
		return a.printStats(ctx, stdout)
	case "validate":
		res, err := a.svc.Validate(ctx)
		if err != nil {
			return err
		}
		if err := writeJSON(stdout, res); err != nil {
			return err
		}
		return res.Err()
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// newApp is the single place where the components are wired together.
func newApp(cfg config.Config, logger *slog.Logger, store storage.Store) *app {
	params := cfg.SchedulerParams()
	th := cfg.ClassifyThresholds()
	m := metrics.New()

	svc := study.NewService(study.Deps{
		Store:          store,
		Params:         params,
		Thresholds:     th,
		Ledger:         session.NewLedger(),
		Validator:      integrity.New(time.Now),
		Achievements:   achievement.NewEvaluator(nil, th),
		Importer:       importer.New(params, cfg.ReposDir, logger, time.Now),
		Observer:       m,
		Logger:         logger,
		Now:            time.Now,
		ValidateOnLoad: cfg.ValidateOnLoad,
	})
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		svc:     svc,
		stats:   stats.NewAggregator(svc, th, time.Now, logger),
		streaks: streak.NewTracker(svc, time.Now),
	}
}

func (a *app) serve(ctx context.Context) error {
	handler := web.NewServer(a.svc, a.stats, a.streaks, a.logger, web.Options{
		StreakDays:   a.cfg.Streak.WindowDays,
		ProgressDays: a.cfg.Progress.WindowDays,
		Metrics:      a.metrics.Handler(),
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) printStats(ctx context.Context, w io.Writer) error {
	basic, err := a.stats.Basic(ctx)
	if err != nil {
		return err
	}
	ext, err := a.stats.Extended(ctx)
	if err != nil {
		return err
	}
	tags, err := a.stats.Tags(ctx)
	if err != nil {
		return err
	}
	progress, err := a.stats.Progress(ctx, a.cfg.Progress.WindowDays)
	if err != nil {
		return err
	}
	sum, err := a.streaks.Summary(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"basic":    basic,
		"extended": ext,
		"tags":     tags,
		"progress": progress,
		"streak":   sum,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
