package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/cascade/internal/api"
	"github.com/tutu-network/cascade/internal/app/propagate"
	"github.com/tutu-network/cascade/internal/app/schedule"
	"github.com/tutu-network/cascade/internal/health"
	"github.com/tutu-network/cascade/internal/infra/sqlite"
)

// Daemon is the cascade runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Log     *slog.Logger
	DB      *sqlite.DB
	Service *schedule.Service
	Server  *api.Server
	Health  *health.Checker

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, logFile, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = cascadeHome()
	}
	db, err := sqlite.Open(dataDir)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine := propagate.New(propagate.Config{VisitCapFactor: cfg.Engine.VisitCapFactor})
	svc := schedule.NewService(db, engine, logger.With("component", "schedule"))

	srv := api.NewServer(svc, db, logger.With("component", "api"))
	srv.SetTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	checker := health.NewChecker(db, dataDir,
		parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval),
		logger.With("component", "health"))
	srv.SetHealth(checker)

	return &Daemon{
		Config:  cfg,
		Log:     logger,
		DB:      db,
		Service: svc,
		Server:  srv,
		Health:  checker,
		logFile: logFile,
	}, nil
}

// Serve starts the HTTP server and blocks until ctx is done or the
// process receives SIGINT/SIGTERM.
func (d *Daemon) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case sig := <-sigCh:
			d.Log.Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Log.Error("http shutdown", "error", err)
		}
	}()

	d.Log.Info("cascade serving",
		"addr", "http://"+ln.Addr().String(),
		"data_dir", d.Config.Storage.Dir,
		"metrics", d.Config.Telemetry.Prometheus)

	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		cancel()
		<-shutdownDone
		return err
	}
	<-shutdownDone
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}

// newLogger builds the daemon's slog logger. When cfg.File is set, logs
// go to that file instead of fallback.
func newLogger(cfg LoggingConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    = fallback
		closer io.Closer
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h), closer, nil
}
