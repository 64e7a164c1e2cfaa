package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// RunConfig is the server configuration passed to `db run`.
type RunConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Search      SearchConfig      `yaml:"search"`
	Store       StoreConfig       `yaml:"store"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Sensor      SensorConfig      `yaml:"sensor"`
}

// ServerConfig holds HTTP listener and request gate settings.
type ServerConfig struct {
	Address      string    `yaml:"address"`
	Port         int       `yaml:"port"`
	MaxBodySize  SizeBytes `yaml:"max_body_size"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	CORS         struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// SearchConfig points at the full-text engine.
type SearchConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	APIKey        string   `yaml:"api_key"`
	Timeout       Duration `yaml:"timeout"`
	UsersIndex    string   `yaml:"users_index"`
	ProjectsIndex string   `yaml:"projects_index"`
	MaxHits       int      `yaml:"max_hits"`
}

// StoreConfig holds run-time storage settings.
type StoreConfig struct {
	ErrorQueueCapacity int  `yaml:"error_queue_capacity"`
	NoSync             bool `yaml:"no_sync"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MaintenanceConfig schedules storage compaction.
type MaintenanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// SensorConfig holds resource monitor thresholds.
type SensorConfig struct {
	Monitor struct {
		PollInterval   Duration `yaml:"poll_interval"`
		DiskHighPct    int      `yaml:"disk_high_pct"`
		DiskLowPct     int      `yaml:"disk_low_pct"`
		MemHighPct     int      `yaml:"mem_high_pct"`
		RecoveryWindow Duration `yaml:"recovery_window"`
	} `yaml:"monitor"`
}

// CreateConfig is fixed when a deployment is created and copied into it.
type CreateConfig struct {
	Store struct {
		RequireAuth RequireAuthConfig `yaml:"require_auth"`
	} `yaml:"store"`
}

// RequireAuthConfig declares which operation classes need an access key.
type RequireAuthConfig struct {
	Read   bool `yaml:"read"`
	Write  bool `yaml:"write"`
	Remove bool `yaml:"remove"`
}

// CrawlerConfig configures `crawler run`.
type CrawlerConfig struct {
	DBURL            string   `yaml:"db_url"`
	DBAuthKey        string   `yaml:"db_auth_key"`
	InitialUser      string   `yaml:"initial_user"`
	APIBase          string   `yaml:"api_base"`
	RequestInterval  Duration `yaml:"request_interval"`
	RequestTimeout   Duration `yaml:"request_timeout"`
	PageSize         int      `yaml:"page_size"`
	MaxProjectOffset int      `yaml:"max_project_offset"`
	MaxUsers         int      `yaml:"max_users"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(s)), nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
