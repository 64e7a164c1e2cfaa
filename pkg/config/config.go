package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddress            = "127.0.0.1"
	defaultPort               = 3030
	defaultMaxBodySize        = 4 * 1024 * 1024
	defaultReadTimeout        = 10 * time.Second
	defaultWriteTimeout       = 10 * time.Second
	defaultRPS                = 1000
	defaultBurst              = 1000
	defaultSearchEndpoint     = "http://localhost:7700"
	defaultSearchTimeout      = 5 * time.Second
	defaultUsersIndex         = "users"
	defaultProjectsIndex      = "projects"
	defaultMaxHits            = 20
	defaultErrorQueueCapacity = 1024
	defaultMaintenanceCron    = "0 3 * * *" // daily at 03:00
	// sensor defaults
	defaultSensorPollInterval   = 5 * time.Second
	defaultSensorDiskHighPct    = 80
	defaultSensorDiskLowPct     = 60
	defaultSensorMemHighPct     = 80
	defaultSensorRecoveryWindow = 30 * time.Second

	defaultCrawlerDBURL       = "http://localhost:3030"
	defaultCrawlerInitialUser = "griffpatch"
	defaultCrawlerAPIBase     = "https://api.scratch.mit.edu"
	defaultCrawlerInterval    = 200 * time.Millisecond
	defaultCrawlerTimeout     = 10 * time.Second
	defaultCrawlerPageSize    = 40
	defaultCrawlerMaxOffset   = 500
)

// Addr returns the HTTP server address as host:port.
func (c *RunConfig) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// loadYAML reads path into out, rejecting unknown fields.
func loadYAML(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadRunConfig reads a run config file.
func LoadRunConfig(path string) (*RunConfig, error) {
	var cfg RunConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCreateConfig reads a create config file and returns it with its raw
// bytes so the exact document can be copied into the deployment.
func LoadCreateConfig(path string) (*CreateConfig, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, nil, err
	}
	cfg, err := ParseCreateConfig(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, raw, nil
}

// ParseCreateConfig decodes a create config document.
func ParseCreateConfig(raw []byte) (*CreateConfig, error) {
	var cfg CreateConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCrawlerConfig reads a crawler config file.
func LoadCrawlerConfig(path string) (*CrawlerConfig, error) {
	var cfg CrawlerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults and rejects invalid values.
func (c *RunConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.RateLimit.RPS <= 0 {
		c.Server.RateLimit.RPS = defaultRPS
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = defaultBurst
	}

	if strings.TrimSpace(c.Search.Endpoint) == "" {
		return errors.New("search.endpoint is empty: set it in the run config or MEOWSTORE_SEARCH_ENDPOINT")
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = Duration(defaultSearchTimeout)
	}
	if c.Search.UsersIndex == "" {
		c.Search.UsersIndex = defaultUsersIndex
	}
	if c.Search.ProjectsIndex == "" {
		c.Search.ProjectsIndex = defaultProjectsIndex
	}
	if c.Search.MaxHits <= 0 {
		c.Search.MaxHits = defaultMaxHits
	}

	if c.Store.ErrorQueueCapacity < 0 {
		return fmt.Errorf("store.error_queue_capacity must be positive, got %d", c.Store.ErrorQueueCapacity)
	}
	if c.Store.ErrorQueueCapacity == 0 {
		c.Store.ErrorQueueCapacity = defaultErrorQueueCapacity
	}

	if c.Maintenance.Cron == "" {
		c.Maintenance.Cron = defaultMaintenanceCron
	}
	if !gronx.New().IsValid(c.Maintenance.Cron) {
		return fmt.Errorf("invalid maintenance.cron expression: %q", c.Maintenance.Cron)
	}

	m := &c.Sensor.Monitor
	if m.PollInterval <= 0 {
		m.PollInterval = Duration(defaultSensorPollInterval)
	}
	if m.DiskHighPct == 0 {
		m.DiskHighPct = defaultSensorDiskHighPct
	}
	if m.DiskLowPct == 0 {
		m.DiskLowPct = defaultSensorDiskLowPct
	}
	if m.MemHighPct == 0 {
		m.MemHighPct = defaultSensorMemHighPct
	}
	if m.RecoveryWindow <= 0 {
		m.RecoveryWindow = Duration(defaultSensorRecoveryWindow)
	}
	if m.DiskLowPct > m.DiskHighPct || m.DiskHighPct > 100 || m.MemHighPct > 100 {
		return fmt.Errorf("invalid sensor thresholds: disk %d/%d%%, mem %d%%", m.DiskLowPct, m.DiskHighPct, m.MemHighPct)
	}
	return nil
}

// Validate fills defaults and rejects invalid values.
func (c *CrawlerConfig) Validate() error {
	if c.DBURL == "" {
		c.DBURL = defaultCrawlerDBURL
	}
	c.DBURL = strings.TrimRight(c.DBURL, "/")
	if c.APIBase == "" {
		c.APIBase = defaultCrawlerAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if strings.TrimSpace(c.InitialUser) == "" {
		return errors.New("initial_user is empty")
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = Duration(defaultCrawlerInterval)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(defaultCrawlerTimeout)
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultCrawlerPageSize
	}
	if c.MaxProjectOffset <= 0 {
		c.MaxProjectOffset = defaultCrawlerMaxOffset
	}
	if c.MaxUsers < 0 {
		return fmt.Errorf("max_users must not be negative, got %d", c.MaxUsers)
	}
	return nil
}

// DefaultRunConfig is the run config written by gen-config.
func DefaultRunConfig() *RunConfig {
	c := &RunConfig{}
	c.Server.Address = defaultAddress
	c.Server.Port = defaultPort
	c.Search.Endpoint = defaultSearchEndpoint
	c.Search.APIKey = "aSampleMasterKey"
	c.Logging.Level = "info"
	c.Maintenance.Enabled = true
	_ = c.Validate()
	return c
}

// DefaultCreateConfig is the create config written by gen-config.
func DefaultCreateConfig() *CreateConfig {
	c := &CreateConfig{}
	c.Store.RequireAuth = RequireAuthConfig{Write: true, Remove: true}
	return c
}

// DefaultCrawlerConfig is the crawler config written by gen-config.
func DefaultCrawlerConfig() *CrawlerConfig {
	c := &CrawlerConfig{InitialUser: defaultCrawlerInitialUser}
	_ = c.Validate()
	return c
}

// WriteNew marshals v to path, failing if path exists.
func WriteNew(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
