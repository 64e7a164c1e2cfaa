// Package maintenance runs cron-scheduled storage compaction.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"meowstore/pkg/config"
	"meowstore/pkg/logger"
)

// ErrRunning is returned by RunNow while a run is in progress.
var ErrRunning = errors.New("maintenance run already in progress")

// Compactor is the storage being maintained.
type Compactor interface {
	Compact() error
}

// Manager schedules compaction runs.
type Manager struct {
	cron   string
	target Compactor

	mu      sync.Mutex
	running bool
	runs    int

	nextTick func(expr string, ref time.Time) (time.Time, error)
}

// New returns a manager for target on the given cron expression.
func New(cron string, target Compactor) (*Manager, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid cron expression: %q", cron)
	}
	return &Manager{
		cron:   cron,
		target: target,
		nextTick: func(expr string, ref time.Time) (time.Time, error) {
			return gronx.NextTickAfter(expr, ref, false)
		},
	}, nil
}

// Start launches the schedule loop when cfg enables it. The returned
// function stops the loop.
func Start(ctx context.Context, cfg config.MaintenanceConfig, target Compactor) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("maintenance_disabled")
		return func() {}, nil
	}
	m, err := New(cfg.Cron, target)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("maintenance_enabled", "cron", cfg.Cron)
	go m.scheduleLoop(ctx)
	return cancel, nil
}

// Runs returns the number of completed runs.
func (m *Manager) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

// RunNow compacts immediately unless a run is in progress.
func (m *Manager) RunNow() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.runs++
		m.mu.Unlock()
	}()

	runID := uuid.NewString()
	start := time.Now()
	logger.Info("maintenance_run_start", "run_id", runID)
	if err := m.target.Compact(); err != nil {
		logger.Error("maintenance_run_failed", "run_id", runID, "error", err)
		return err
	}
	logger.Info("maintenance_run_done", "run_id", runID, "took", time.Since(start))
	return nil
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := m.nextTick(m.cron, time.Now())
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", m.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			if err := m.RunNow(); err != nil && !errors.Is(err, ErrRunning) {
				logger.Warn("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
