package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"meowstore/internal/maintenance"
	"meowstore/pkg/api/auth"
	"meowstore/pkg/config"
	"meowstore/pkg/config/banner"
	"meowstore/pkg/db"
	"meowstore/pkg/logger"
	"meowstore/pkg/search"
	"meowstore/pkg/sensor"
	"meowstore/pkg/state"
	"meowstore/pkg/store/engine"
)

// App groups server state and components.
type App struct {
	root    string
	cfg     *config.RunConfig
	create  *config.CreateConfig
	version string
	mode    engine.OpenMode

	lock     *state.Lock
	store    *db.Store
	gate     *auth.Gate
	hwSensor *sensor.Sensor

	srvFast     *fasthttp.Server
	maintCancel context.CancelFunc
	errsDone    chan struct{}
	registry    prometheus.Registerer
	collectors  []prometheus.Collector

	mu    sync.Mutex
	state string
}

// Options tune New beyond the run config.
type Options struct {
	Version string
	// Registry receives the store and sensor collectors; nil uses the default registry.
	Registry prometheus.Registerer
}

// New locks the deployment at root, opens its store in the mode recorded by
// its status marker, and marks it existing. It does not start serving.
func New(root string, cfg *config.RunConfig, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	lock, err := state.Acquire(root)
	if err != nil {
		return nil, err
	}
	a := &App{root: root, cfg: cfg, version: opts.Version, lock: lock, registry: opts.Registry, state: "starting"}
	if a.registry == nil {
		a.registry = prometheus.DefaultRegisterer
	}
	if err := a.open(); err != nil {
		_ = lock.Release()
		return nil, err
	}
	return a, nil
}

func (a *App) open() error {
	st, err := state.ReadStatus(a.root)
	if err != nil {
		return err
	}
	mode, err := st.Mode()
	if err != nil {
		return err
	}
	a.mode = mode

	create := config.DefaultCreateConfig()
	raw, err := os.ReadFile(state.PathsFor(a.root).Create)
	switch {
	case err == nil:
		if create, err = config.ParseCreateConfig(raw); err != nil {
			return fmt.Errorf("parse create config: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read create config: %w", err)
	}
	a.create = create

	mirror, err := search.New(search.Options{
		Endpoint: a.cfg.Search.Endpoint,
		APIKey:   a.cfg.Search.APIKey,
		Timeout:  a.cfg.Search.Timeout.Duration(),
		MaxHits:  a.cfg.Search.MaxHits,
	})
	if err != nil {
		return err
	}

	store, err := db.Open(db.Options{
		Dir:           a.root,
		Mode:          mode,
		NoSync:        a.cfg.Store.NoSync,
		RequireAuth:   db.RequireAuth(create.Store.RequireAuth),
		Mirror:        mirror,
		UsersIndex:    a.cfg.Search.UsersIndex,
		ProjectsIndex: a.cfg.Search.ProjectsIndex,
		ErrorQueue:    a.cfg.Store.ErrorQueueCapacity,
	})
	if err != nil {
		return fmt.Errorf("open store in %s mode: %w", mode, err)
	}
	a.store = store

	// drain until the store closes the channel, not until shutdown begins
	a.errsDone = make(chan struct{})
	go func() {
		defer close(a.errsDone)
		db.ConsumeErrors(context.Background(), store.Errors())
	}()

	if st != state.StatusExisting {
		if err := state.WriteStatus(a.root, state.StatusExisting); err != nil {
			a.closeStore()
			return fmt.Errorf("mark deployment existing: %w", err)
		}
	}

	mon := a.cfg.Sensor.Monitor
	a.hwSensor = sensor.NewSensor(a.root, sensor.MonitorConfig{
		PollInterval:   mon.PollInterval.Duration(),
		DiskHighPct:    mon.DiskHighPct,
		DiskLowPct:     mon.DiskLowPct,
		MemHighPct:     mon.MemHighPct,
		RecoveryWindow: mon.RecoveryWindow.Duration(),
	})

	collectors := append(store.Collectors(), a.hwSensor.Collectors()...)
	for _, c := range collectors {
		if err := a.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				a.closeStore()
				return fmt.Errorf("register metrics: %w", err)
			}
			continue
		}
		a.collectors = append(a.collectors, c)
	}

	stats := store.Stats()
	logger.LogConfigSummary("store_summary", []string{
		fmt.Sprintf("mode: %s", mode),
		fmt.Sprintf("users: %s", humanize.Comma(int64(stats.Users))),
		fmt.Sprintf("projects: %s", humanize.Comma(int64(stats.Projects))),
		fmt.Sprintf("access_keys: %s", humanize.Comma(int64(stats.Keys))),
		fmt.Sprintf("error_queue: %s", humanize.Comma(int64(a.cfg.Store.ErrorQueueCapacity))),
	})
	logger.Info("deployment_opened", "root", a.root, "mode", mode.String())
	return nil
}

// Store exposes the opened store.
func (a *App) Store() *db.Store { return a.store }

// State returns the lifecycle state name.
func (a *App) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) setState(s string) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Run starts maintenance and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg, a.create, a.root, a.mode.String(), a.version)

	cancel, err := maintenance.Start(ctx, a.cfg.Maintenance, a.store)
	if err != nil {
		return err
	}
	a.maintCancel = cancel

	// start hardware sensor
	a.hwSensor.Start()

	errCh := a.startHTTP(ctx)
	a.setState("running")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	// collectors read the databases, so they go first
	for _, c := range a.collectors {
		a.registry.Unregister(c)
	}
	a.collectors = nil
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	<-a.errsDone
}
