package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elonfeng/repscore/internal/config"
	"github.com/elonfeng/repscore/internal/logger"
	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/elonfeng/repscore/internal/scheduler"
	"github.com/elonfeng/repscore/internal/store"
	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/elonfeng/repscore/pkg/alert"
	"github.com/elonfeng/repscore/pkg/github"
	"github.com/elonfeng/repscore/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logrus.Entry
	db       *store.SQLiteStore
	registry *prometheus.Registry
	service  *activity.Service
	batch    *activity.BatchRunner
	batchOpt activity.BatchOptions
	closers  []func() error
}

// batchRunner returns the configured runner, or one sized to workers when
// the caller overrides the pool size.
func (a *app) batchRunner(workers int) *activity.BatchRunner {
	if workers <= 0 {
		return a.batch
	}
	return activity.NewBatchRunner(a.service.Manager(), a.db, a.batchOptions(workers))
}

func (a *app) batchOptions(workers int) activity.BatchOptions {
	opts := a.batchOpt
	if workers > 0 {
		opts.Workers = workers
	}
	return opts
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close")
		}
	}
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := func() time.Time { return time.Now().In(loc) }

	log := logger.New("repscore", cfg.Log.Level)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	var locker activity.Locker = activity.NewKeyedMutex()
	if cfg.Redis.URL != "" {
		rl, err := store.NewRedisLocker(ctx, cfg.Redis.URL, cfg.Redis.ParseLockTTL())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rl.Close)
		locker = rl
		log.Info("using redis entity lock")
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	gh := github.New(github.Options{
		Token:      cfg.GitHub.Token,
		APIURL:     cfg.GitHub.APIURL,
		WebURL:     cfg.GitHub.WebURL,
		Timeout:    cfg.GitHub.ParseTimeout(),
		Retries:    cfg.GitHub.Retries,
		RecentDays: cfg.GitHub.RecentDays,
	})
	if cfg.GitHub.Token == "" {
		log.Warn("GITHUB_TOKEN not set; contribution calendar disabled")
	}
	adapter := github.NewAdapter(gh, cfg.GitHub.Weights, log.WithField("component", "github"))

	sources := activity.Sources{
		Participations: db,
		Roster:         db,
		Reviews:        db,
		Directory:      db,
	}
	agg := activity.NewAggregator(sources, adapter, db, activity.AggregatorOptions{
		Rules:            cfg.Scoring,
		ExternalTTL:      cfg.Cache.ParseGitHubTTL(),
		ExternalTimeout:  cfg.GitHub.ParseTimeout(),
		MaxExternalCalls: cfg.GitHub.MaxConcurrent,
		Logger:           log.WithField("component", "aggregator"),
		Metrics:          m,
		Clock:            clock,
	})
	mgr := activity.NewManager(agg, db, activity.ManagerOptions{
		TTL:     cfg.Cache.ParseActivityTTL(),
		Locker:  locker,
		Logger:  log.WithField("component", "manager"),
		Metrics: m,
		Clock:   clock,
	})
	a.service = activity.NewService(mgr)
	a.batchOpt = activity.BatchOptions{
		Workers:       cfg.Batch.Workers,
		EntityTimeout: cfg.Batch.ParseEntityTimeout(),
		Logger:        log.WithField("component", "batch"),
		Metrics:       m,
	}
	a.batch = activity.NewBatchRunner(mgr, db, a.batchOpt)
	return a, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func parseKind(s string) (activity.EntityKind, error) {
	kind := activity.EntityKind(s)
	if s == "org" {
		kind = activity.KindOrganization
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown entity kind %q (want user or organization)", s)
	}
	return kind, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	srv := server.New(a.service, a.batch, a.registry, a.log.WithField("component", "server"), port)
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	sched := scheduler.New(a.batch, buildAlertManager(a.cfg), a.log.WithField("component", "scheduler"),
		a.cfg.Batch.ParseInterval(),
		a.cfg.Batch.ParseExternalInterval(),
	)

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Error("scheduler error")
		}
	}()

	srv := server.New(a.service, a.batch, a.registry, a.log.WithField("component", "server"), port)
	err = srv.ListenAndServe(ctx)
	a.log.Info("shutting down")
	return err
}

func runShow(kindArg, id string, force bool) error {
	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.service.GetActivity(ctx, activity.EntityRef{Kind: kind, ID: id}, force)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(rec)
	}
	renderRecord(os.Stdout, rec)
	return nil
}

func runRecompute(kindArg, id string, forceExternal bool) error {
	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.service.Manager().Recompute(ctx, activity.EntityRef{Kind: kind, ID: id}, forceExternal)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(rec)
	}
	renderRecord(os.Stdout, rec)
	return nil
}

func runBatch(kindArg string, forceExternal bool, workers int) error {
	kinds := []activity.EntityKind{activity.KindOrganization, activity.KindUser}
	if kindArg != "" {
		kind, err := parseKind(kindArg)
		if err != nil {
			return err
		}
		kinds = []activity.EntityKind{kind}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := a.batchRunner(workers)

	results := make([]activity.BatchResult, 0, len(kinds))
	for _, kind := range kinds {
		res, err := runner.RecomputeKind(ctx, kind, forceExternal)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	if jsonOutput {
		return printJSON(results)
	}
	for i, res := range results {
		renderBatch(os.Stdout, kinds[i], res)
	}
	return nil
}

func runTop(kindArg string, limit int, periodArg string) error {
	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}
	period, err := activity.ParsePeriod(periodArg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	standings, err := a.service.GetTopEntities(ctx, kind, limit, period)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(standings)
	}
	if len(standings) == 0 {
		fmt.Println("no records yet (try: repscore batch)")
		return nil
	}
	renderStandings(os.Stdout, standings)
	return nil
}

func runHook(name, file string) error {
	var (
		body []byte
		err  error
	)
	if file == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := server.NewHooks(a.service).Apply(ctx, name, body)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("hook ignored")
		return nil
	}
	if jsonOutput {
		return printJSON(rec)
	}
	renderRecord(os.Stdout, rec)
	return nil
}
