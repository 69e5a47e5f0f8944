package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"clipdetect/queue/internal/detection"
	"clipdetect/queue/internal/ledger"
	"clipdetect/queue/internal/observability/metrics"
	"clipdetect/queue/internal/redisq"
)

func main() {
	mode := flag.String("mode", "all", "run mode: all|api|worker")
	flag.Parse()

	switch *mode {
	case "all", "api", "worker":
	default:
		logger.Error("unknown run mode", "mode", *mode)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.redisAddr, "error", err)
		os.Exit(1)
	}
	store, err := ledger.Open(cfg.dbPath)
	if err != nil {
		logger.Error("failed to open detection ledger", "path", cfg.dbPath, "error", err)
		os.Exit(1)
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.redisAddr, Password: cfg.redisPassword, DB: cfg.redisDB}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := newAppState(cfg, rdb, asynq.NewClient(redisOpt), store, registry)
	if err != nil {
		logger.Error("failed to initialize app state", "error", err)
		os.Exit(1)
	}
	defer st.redis.Close()
	defer st.asynqCli.Close()
	defer st.ledger.Close()

	var runErr error
	switch *mode {
	case "api":
		runErr = runAPI(ctx, st)
	case "worker":
		runErr = runWorker(ctx, st, redisOpt)
	case "all":
		errc := make(chan error, 1)
		go func() { errc <- runWorker(ctx, st, redisOpt) }()
		runErr = runAPI(ctx, st)
		stop()
		runErr = errors.Join(runErr, <-errc)
	}
	if runErr != nil {
		logger.Error("service stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func loadConfig() config {
	host, _ := os.Hostname()
	return config{
		redisAddr:          envOrDefault("REDIS_ADDR", "redis:6379"),
		redisPassword:      os.Getenv("REDIS_PASSWORD"),
		redisDB:            envInt("REDIS_DB", 0),
		queueName:          envOrDefault("ASYNQ_QUEUE", "default"),
		concurrency:        envInt("ASYNQ_CONCURRENCY", 2),
		dbPath:             envOrDefault("DETECTION_DB_PATH", "/app/detections.db"),
		apiAddr:            envOrDefault("QUEUE_API_ADDR", ":8001"),
		workQueueName:      envOrDefault("WORK_QUEUE_NAME", detection.DefaultQueue),
		workerTaskName:     envOrDefault("WORKER_TASK_NAME", detection.DefaultTaskName),
		workerOrigin:       envOrDefault("WORKER_ORIGIN", fmt.Sprintf("gen%d@%s", os.Getpid(), host)),
		pollInterval:       envDuration("POLL_INTERVAL", detection.DefaultPollInterval),
		thumbnailTemplate:  envOrDefault("THUMBNAIL_URL_TEMPLATE", detection.DefaultThumbnailTemplate),
		thumbnailCount:     envInt("THUMBNAIL_COUNT", detection.DefaultThumbnailCount),
		webhookReadyStatus: envInt("WEBHOOK_READY_STATUS", 3),
		shutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func newAppState(cfg config, rdb RedisClient, asynqCli AsynqClient, store RecordStore, registry *prometheus.Registry) (*appState, error) {
	m, err := metrics.NewDetectionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	inputs, err := detection.NewInputTemplate(cfg.thumbnailTemplate, cfg.thumbnailCount)
	if err != nil {
		return nil, err
	}
	proto := detection.NewWireProtocol(cfg.workerTaskName, cfg.workQueueName, cfg.workerOrigin)
	opts := []detection.Option{detection.WithLogger(logger), detection.WithMetrics(m)}

	dispatcher := detection.NewDispatcher(redisq.NewWorkQueue(rdb), store, proto, opts...)
	return &appState{
		cfg:        cfg,
		redis:      rdb,
		asynqCli:   asynqCli,
		ledger:     store,
		dispatcher: dispatcher,
		sweeper:    detection.NewSweeper(store, store, dispatcher, inputs, opts...),
		reconciler: detection.NewReconciler(store, redisq.NewResultStore(rdb), cfg.pollInterval, opts...),
		inputs:     inputs,
		metrics:    m,
		metricsH:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, nil
}

func runAPI(ctx context.Context, st *appState) error {
	srv := &http.Server{
		Addr:              st.cfg.apiAddr,
		Handler:           st.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("detection api listening", "addr", st.cfg.apiAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), st.cfg.shutdownTimeout)
	defer cancel()
	logger.Info("detection api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// runWorker hosts the reconciliation loop and the asynq server that runs
// background backfill sweeps. Both stop when ctx is done.
func runWorker(ctx context.Context, st *appState, redisOpt asynq.RedisClientOpt) error {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     st.cfg.concurrency,
		Queues:          map[string]int{st.cfg.queueName: 1},
		ShutdownTimeout: st.cfg.shutdownTimeout,
		Logger:          asynqLogger{},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeBackfill, st.processBackfillTask)

	if err := st.reconciler.Start(ctx); err != nil {
		return err
	}
	defer st.reconciler.Stop()

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	logger.Info("detection worker started",
		"queue", st.cfg.queueName,
		"concurrency", st.cfg.concurrency,
		"work_queue", st.cfg.workQueueName,
		"poll_interval", st.cfg.pollInterval.String(),
	)
	<-ctx.Done()
	srv.Shutdown()
	return nil
}
