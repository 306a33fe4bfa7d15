// Package app initializes and holds the long-lived services of the
// linkpreview server, acting as its dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/api"
	"github.com/JakeFAU/linkpreview/internal/clock/system"
	"github.com/JakeFAU/linkpreview/internal/config"
	"github.com/JakeFAU/linkpreview/internal/dispatcher"
	collydownload "github.com/JakeFAU/linkpreview/internal/download/colly"
	"github.com/JakeFAU/linkpreview/internal/hash/sha256"
	"github.com/JakeFAU/linkpreview/internal/id/uuid"
	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/links"
	"github.com/JakeFAU/linkpreview/internal/metrics"
	memoryqueue "github.com/JakeFAU/linkpreview/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/linkpreview/internal/queue/pubsub"
	"github.com/JakeFAU/linkpreview/internal/storage/gcs"
	"github.com/JakeFAU/linkpreview/internal/storage/local"
	"github.com/JakeFAU/linkpreview/internal/storage/memory"
	"github.com/JakeFAU/linkpreview/internal/storage/postgres"
	"github.com/JakeFAU/linkpreview/internal/worker"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App holds the shared services of a running server.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Links      linkpreview.LinkStore
	Blobs      linkpreview.BlobStore
	Queue      linkpreview.Queue
	Service    *links.Service
	Dispatcher *dispatcher.Dispatcher
	Server     *api.Server

	runners []func(context.Context) error
	closers []func() error
	checks  []api.ReadinessCheck
}

// New builds every service cfg asks for. It fails fast when a backend cannot
// be reached and releases whatever was opened before the failure.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	steps := []func(context.Context) error{
		a.initBlobs,
		a.initLinks,
		a.initQueue,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	downloader := collydownload.New(collydownload.Config{
		UserAgent:     cfg.Download.UserAgent,
		RespectRobots: !cfg.Download.IgnoreRobots,
		Timeout:       cfg.DownloadTimeout(),
		MaxBytes:      cfg.Download.MaxBytes,
	})
	hasher := sha256.New()
	clock := system.New()

	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			a.Queue,
			a.Links,
			a.Blobs,
			downloader,
			hasher,
			clock,
			worker.Config{
				BlobPrefix: cfg.Storage.Prefix,
				Timeout:    cfg.DownloadTimeout() * 2,
			},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.Dispatcher = dispatcher.New(a.Queue, workers)
	a.Service = links.New(a.Links, a.Blobs, a.Dispatcher, uuid.New(), clock, logger.Named("links"))
	a.Server = api.NewServer(a.Service, cfg, logger, a.checks...)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
		zap.Int("workers", cfg.Worker.Concurrency),
	)
	return a, nil
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.logger.Info("using gcs blob storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.Blobs = store
		a.closers = append(a.closers, store.Close)
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("using local blob storage", zap.String("dir", a.cfg.Storage.LocalDir))
		a.Blobs = store
	default:
		a.logger.Info("using in-memory blob storage; thumbnails are lost on restart")
		a.Blobs = memory.NewBlobStore()
	}
	return nil
}

func (a *App) initLinks(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory link storage; records are lost on restart")
		a.Links = memory.NewLinkStore()
		return nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if a.cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, pool, a.logger.Named("migrate")); err != nil {
			return err
		}
	}
	store, err := postgres.NewLinkStore(pool)
	if err != nil {
		return fmt.Errorf("init link store: %w", err)
	}
	a.Links = store
	a.checks = append(a.checks, pingCheck(pool))
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		initial, maxDelay := a.cfg.RetryBackoff()
		q := memoryqueue.NewQueue(a.cfg.Worker.QueueDepth, memoryqueue.Options{
			MaxAttempts:    a.cfg.Worker.MaxAttempts,
			BackoffInitial: initial,
			BackoffMax:     maxDelay,
			Logger:         a.logger.Named("queue"),
		})
		a.Queue = q
		a.closers = append(a.closers, func() error {
			q.Close()
			return nil
		})
		return nil
	}

	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	q, err := pubsubqueue.New(client, pubsubqueue.Config{
		TopicName:      a.cfg.PubSub.TopicName,
		Subscription:   a.cfg.PubSub.Subscription,
		MaxOutstanding: a.cfg.PubSub.MaxOutstanding,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init pubsub queue: %w", err)
	}
	a.logger.Info("using pubsub job queue",
		zap.String("topic", a.cfg.PubSub.TopicName),
		zap.String("subscription", a.cfg.PubSub.Subscription),
	)
	a.Queue = q
	a.runners = append(a.runners, q.Run)
	a.closers = append(a.closers, func() error {
		q.Close()
		return nil
	})
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

var _ pinger = (*pgxpool.Pool)(nil)

func pingCheck(p pinger) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
		return nil
	}
}

// Run serves HTTP and runs the worker pool until ctx ends or the listener
// fails, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	for _, run := range a.runners {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				a.logger.Error("background runner failed", zap.Error(err))
				cancel()
			}
		}(run)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("dispatcher started")
		a.Dispatcher.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
			return
		}
		serveErr <- nil
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
