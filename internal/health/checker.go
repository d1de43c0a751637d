// Package health provides periodic health checks with auto-recovery:
// database connectivity, the data directory, and the stored dependency
// graphs.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tutu-network/cascade/internal/app/cpm"
	"github.com/tutu-network/cascade/internal/app/graph"
	"github.com/tutu-network/cascade/internal/infra/metrics"
	"github.com/tutu-network/cascade/internal/infra/sqlite"
)

// DefaultInterval is how often Run re-checks when no interval is given.
const DefaultInterval = 60 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      *slog.Logger
}

// NewChecker creates a checker with the standard checks against db and
// its data directory. A zero interval means DefaultInterval.
func NewChecker(db *sqlite.DB, dataDir string, interval time.Duration, logger *slog.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		interval: interval,
		log:      logger,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(dataDir, 0700)
				},
			},
			{
				Name: "graph_integrity",
				CheckFn: func(ctx context.Context) error {
					return checkGraphs(ctx, db)
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check now and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr == nil && check.CheckFn(ctx) == nil {
					s.Healthy, s.Recovered, s.Error = true, true, ""
				}
			}
		} else {
			s.Healthy = true
		}

		if s.Healthy {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		} else {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			if c.log != nil {
				c.log.Warn("health check failed", "check", check.Name, "error", s.Error)
			}
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// checkDataDir verifies the directory exists and accepts writes.
func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(filepath.Clean(name))
}

// checkGraphs loads every scope and verifies its dependency graph can
// still be ordered. Rows written outside the service can break this.
func checkGraphs(ctx context.Context, db *sqlite.DB) error {
	scopes, err := db.ListScopes(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		snap, err := db.LoadScope(ctx, sc.ID)
		if err != nil {
			return fmt.Errorf("scope %s: %w", sc.ID, err)
		}
		g, err := graph.Build(sc.ID, snap.Tasks, snap.Edges)
		if err != nil {
			return fmt.Errorf("scope %s: %w", sc.ID, err)
		}
		if _, err := cpm.TopologicalOrder(g); err != nil {
			return fmt.Errorf("scope %s: %w", sc.ID, err)
		}
	}
	return nil
}
