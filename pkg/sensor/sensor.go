// Package sensor watches the resources a deployment depends on: free space
// on the filesystem holding the data directory and Go heap usage.
package sensor

import (
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"meowstore/pkg/logger"
)

// sensor struct
type Sensor struct {
	dir      string
	config   MonitorConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time

	mu            sync.Mutex
	diskAlert     bool
	memAlert      bool
	diskCalmSince time.Time
	memCalmSince  time.Time
	diskUsedPct   float64
	diskFree      uint64
	memUsedPct    float64
}

// monitor config
type MonitorConfig struct {
	PollInterval   time.Duration
	DiskHighPct    int
	DiskLowPct     int
	MemHighPct     int
	RecoveryWindow time.Duration
}

// Reading is one sample.
type Reading struct {
	DiskUsedPct float64
	DiskFree    uint64
	MemUsedPct  float64
	DiskAlert   bool
	MemAlert    bool
}

// NewSensor returns a sensor for the filesystem holding dir.
func NewSensor(dir string, config MonitorConfig) *Sensor {
	return &Sensor{
		dir:    dir,
		config: config,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// start sensor
func (s *Sensor) Start() {
	s.wg.Add(1)
	go s.run()
}

// stop sensor
func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// run loop
func (s *Sensor) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	s.check()
	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopCh:
			return
		}
	}
}

// Last returns the most recent sample.
func (s *Sensor) Last() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Reading{
		DiskUsedPct: s.diskUsedPct,
		DiskFree:    s.diskFree,
		MemUsedPct:  s.memUsedPct,
		DiskAlert:   s.diskAlert,
		MemAlert:    s.memAlert,
	}
}

func (s *Sensor) check() {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.dir, &stat); err != nil {
		logger.Warn("sensor_disk_stat_failed", "dir", s.dir, "error", err)
		return
	}
	free := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var diskPct, memPct float64
	if total > 0 {
		diskPct = float64(total-free) / float64(total) * 100
	}
	if m.HeapSys > 0 {
		memPct = float64(m.HeapInuse) / float64(m.HeapSys) * 100
	}
	s.observe(diskPct, free, memPct)
}

// observe applies one sample to the alert state. An alert raises above the
// high mark and clears once usage has stayed below the low mark for the
// recovery window.
func (s *Sensor) observe(diskPct float64, free uint64, memPct float64) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diskUsedPct, s.diskFree, s.memUsedPct = diskPct, free, memPct

	switch {
	case diskPct > float64(s.config.DiskHighPct):
		if !s.diskAlert {
			logger.Warn("disk_usage_high", "dir", s.dir, "used_pct", diskPct, "free", humanize.IBytes(free), "threshold_pct", s.config.DiskHighPct)
			s.diskAlert = true
		}
		s.diskCalmSince = time.Time{}
	case s.diskAlert && diskPct < float64(s.config.DiskLowPct):
		if s.diskCalmSince.IsZero() {
			s.diskCalmSince = now
		}
		if now.Sub(s.diskCalmSince) >= s.config.RecoveryWindow {
			logger.Info("disk_usage_recovered", "dir", s.dir, "used_pct", diskPct, "free", humanize.IBytes(free))
			s.diskAlert = false
			s.diskCalmSince = time.Time{}
		}
	default:
		s.diskCalmSince = time.Time{}
	}

	// memory has a single mark
	switch {
	case memPct > float64(s.config.MemHighPct):
		if !s.memAlert {
			logger.Warn("memory_usage_high", "used_pct", memPct, "threshold_pct", s.config.MemHighPct)
			s.memAlert = true
		}
		s.memCalmSince = time.Time{}
	case s.memAlert:
		if s.memCalmSince.IsZero() {
			s.memCalmSince = now
		}
		if now.Sub(s.memCalmSince) >= s.config.RecoveryWindow {
			logger.Info("memory_usage_recovered", "used_pct", memPct)
			s.memAlert = false
			s.memCalmSince = time.Time{}
		}
	}
}

// Collectors exposes the last sample as gauges.
func (s *Sensor) Collectors() []prometheus.Collector {
	gauge := func(name, help string, f func(Reading) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "meowstore",
			Subsystem: "sensor",
			Name:      name,
			Help:      help,
		}, func() float64 { return f(s.Last()) })
	}
	return []prometheus.Collector{
		gauge("disk_used_percent", "Used space on the data filesystem.", func(r Reading) float64 { return r.DiskUsedPct }),
		gauge("disk_free_bytes", "Free space on the data filesystem.", func(r Reading) float64 { return float64(r.DiskFree) }),
		gauge("heap_used_percent", "Go heap in use relative to heap obtained from the OS.", func(r Reading) float64 { return r.MemUsedPct }),
	}
}
