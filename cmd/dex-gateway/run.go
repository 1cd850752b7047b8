package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-discord-gateway/cache"
	"github.com/EasterCompany/dex-discord-gateway/client"
	"github.com/EasterCompany/dex-discord-gateway/config"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/health"
	"github.com/EasterCompany/dex-discord-gateway/log"
	"github.com/EasterCompany/dex-discord-gateway/worker"
)

const shutdownTimeout = 10 * time.Second

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

type runOptions struct {
	healthInterval time.Duration
	statusAddr     string
	workers        int
	queueSize      int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect every configured shard and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGateway(ctx, cfg, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.healthInterval, "health-interval", 5*time.Minute, "how often to log a health report (0 disables)")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "address for the HTTP status server, e.g. :8300 (empty disables)")
	cmd.Flags().IntVar(&opts.workers, "cache-workers", 4, "goroutines writing to Redis")
	cmd.Flags().IntVar(&opts.queueSize, "cache-queue", 1024, "events buffered for Redis before dropping")
	return cmd
}

// mirrorStack is the optional Redis side of the process.
type mirrorStack struct {
	rdb    *redis.Client
	pool   *worker.Pool
	mirror *cache.Mirror
	unsub  func()
}

func (m *mirrorStack) close(logger *slog.Logger) {
	if m == nil {
		return
	}
	if m.unsub != nil {
		m.unsub()
	}
	if m.pool != nil {
		m.pool.Stop()
	}
	if err := m.rdb.Close(); err != nil {
		logger.Warn("closing redis", "error", err)
	}
}

func runGateway(ctx context.Context, cfg *config.Config, opts *runOptions) error {
	var (
		stack *mirrorStack
		extra []io.Writer
	)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		stack = &mirrorStack{rdb: rdb}
		extra = append(extra, cache.NewLogWriter(rdb, cfg.Redis.Prefix))
	}
	logger := log.New(cfg.Log, extra...)
	defer stack.close(logger)

	c, err := client.New(*cfg, client.WithLogger(logger))
	if err != nil {
		return errors.WrapIf(err, "create client")
	}

	var pinger health.Pinger
	if stack != nil {
		stack.pool = worker.New(opts.workers, opts.queueSize, logger)
		stack.pool.Start(context.Background())
		stack.mirror = cache.NewMirror(stack.rdb, cfg.Redis, stack.pool, logger,
			cache.WithSkip(events.TypeTypingStart, events.TypePresenceUpdate))
		stack.unsub = stack.mirror.Subscribe(c.Events())
		pinger = stack.mirror
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			logger.Warn("closing client", "error", err)
		}
		logger.Info("gateway stopped")
	}()

	if opts.statusAddr != "" {
		status := health.NewStatusServer(opts.statusAddr, version, func(ctx context.Context) health.Report {
			return c.Health(ctx, pinger)
		}, logger)
		if err := status.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := status.Shutdown(shutdownCtx); err != nil {
				logger.Warn("stopping status server", "error", err)
			}
		}()
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	if err := c.WaitReady(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	logger.Info("gateway ready", "shards", c.Shards().Len())

	var tick <-chan time.Time
	if opts.healthInterval > 0 {
		ticker := time.NewTicker(opts.healthInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-c.Shards().Fatal():
			return c.Shards().Err()
		case <-tick:
			logger.Info("health report", "report", c.Health(ctx, pinger).String())
		}
	}
}
