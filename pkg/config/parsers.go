package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const envPrefix = "MEOWSTORE_"

// ApplyRunEnv overlays MEOWSTORE_* environment variables onto cfg and
// reports whether any of them was set.
func ApplyRunEnv(cfg *RunConfig) bool {
	envs := map[string]string{
		"SERVER_ADDR":      os.Getenv(envPrefix + "SERVER_ADDR"),
		"SERVER_ADDRESS":   os.Getenv(envPrefix + "SERVER_ADDRESS"),
		"SERVER_PORT":      os.Getenv(envPrefix + "SERVER_PORT"),
		"MAX_BODY_SIZE":    os.Getenv(envPrefix + "MAX_BODY_SIZE"),
		"CORS_ORIGINS":     os.Getenv(envPrefix + "CORS_ORIGINS"),
		"RATE_RPS":         os.Getenv(envPrefix + "RATE_RPS"),
		"RATE_BURST":       os.Getenv(envPrefix + "RATE_BURST"),
		"IP_WHITELIST":     os.Getenv(envPrefix + "IP_WHITELIST"),
		"SEARCH_ENDPOINT":  os.Getenv(envPrefix + "SEARCH_ENDPOINT"),
		"SEARCH_API_KEY":   os.Getenv(envPrefix + "SEARCH_API_KEY"),
		"SEARCH_TIMEOUT":   os.Getenv(envPrefix + "SEARCH_TIMEOUT"),
		"ERROR_QUEUE":      os.Getenv(envPrefix + "ERROR_QUEUE"),
		"NO_SYNC":          os.Getenv(envPrefix + "NO_SYNC"),
		"LOG_LEVEL":        os.Getenv(envPrefix + "LOG_LEVEL"),
		"MAINTENANCE":      os.Getenv(envPrefix + "MAINTENANCE"),
		"MAINTENANCE_CRON": os.Getenv(envPrefix + "MAINTENANCE_CRON"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	if !envUsed {
		return false
	}

	if v := envs["SERVER_ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			cfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	if v := envs["MAX_BODY_SIZE"]; v != "" {
		cfg.Server.MaxBodySize = parseSizeBytes(v)
	}
	if v := envs["CORS_ORIGINS"]; v != "" {
		cfg.Server.CORS.AllowedOrigins = parseList(v)
	}
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Server.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		cfg.Server.RateLimit.Burst = int(parseInt64(v, int64(cfg.Server.RateLimit.Burst)))
	}
	if v := envs["IP_WHITELIST"]; v != "" {
		cfg.Server.IPWhitelist = parseList(v)
	}

	if v := envs["SEARCH_ENDPOINT"]; v != "" {
		cfg.Search.Endpoint = strings.TrimSpace(v)
	}
	if v := envs["SEARCH_API_KEY"]; v != "" {
		cfg.Search.APIKey = v
	}
	if v := envs["SEARCH_TIMEOUT"]; v != "" {
		cfg.Search.Timeout = parseDuration(v)
	}

	if v := envs["ERROR_QUEUE"]; v != "" {
		cfg.Store.ErrorQueueCapacity = int(parseInt64(v, int64(cfg.Store.ErrorQueueCapacity)))
	}
	if v := envs["NO_SYNC"]; v != "" {
		cfg.Store.NoSync = parseBool(v, cfg.Store.NoSync)
	}
	if v := envs["LOG_LEVEL"]; v != "" {
		cfg.Logging.Level = v
	}
	if v := envs["MAINTENANCE"]; v != "" {
		cfg.Maintenance.Enabled = parseBool(v, cfg.Maintenance.Enabled)
	}
	if v := envs["MAINTENANCE_CRON"]; v != "" {
		cfg.Maintenance.Cron = v
	}
	return true
}

// ApplyCrawlerEnv overlays crawler environment variables onto cfg.
func ApplyCrawlerEnv(cfg *CrawlerConfig) {
	if v := os.Getenv(envPrefix + "CRAWLER_DB_URL"); v != "" {
		cfg.DBURL = v
	}
	if v := os.Getenv(envPrefix + "CRAWLER_DB_AUTH_KEY"); v != "" {
		cfg.DBAuthKey = v
	}
	if v := os.Getenv(envPrefix + "CRAWLER_INITIAL_USER"); v != "" {
		cfg.InitialUser = v
	}
	if v := os.Getenv(envPrefix + "CRAWLER_INTERVAL"); v != "" {
		cfg.RequestInterval = parseDuration(v)
	}
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseInt64(v string, def int64) int64 {
	if v == "" {
		return def
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return i
	}
	return def
}

func parseSizeBytes(v string) SizeBytes {
	if strings.TrimSpace(v) == "" {
		return SizeBytes(0)
	}
	if u, err := humanize.ParseBytes(v); err == nil {
		return SizeBytes(u)
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return SizeBytes(i)
	}
	return SizeBytes(0)
}

func parseDuration(v string) Duration {
	if strings.TrimSpace(v) == "" {
		return Duration(0)
	}
	if td, err := time.ParseDuration(v); err == nil {
		return Duration(td)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second)))
	}
	return Duration(0)
}
