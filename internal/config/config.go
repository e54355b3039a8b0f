/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config covers process level configuration. Precedence is environment
// variables over the optional YAML file over built-in defaults.
type Config struct {
	Environment string

	// Server location. An explicit address skips discovery entirely; a
	// subnet prefix ("10.1.1") restricts the scan to that /24.
	ServerAddress    string
	SubnetPrefix     string
	DiscoveryEnabled bool
	ProbeTimeout     time.Duration

	PollInterval time.Duration
	PingInterval time.Duration

	CacheDir      string
	CacheMaxBytes int64

	FadeDuration       time.Duration
	TransitionsEnabled bool
	ImageDuration      time.Duration
	CaptureInterval    time.Duration

	StatusBind       string
	SpecialEventsDir string

	// SimulatedTime pins the kiosk clock for rehearsals and tests
	// (RFC 3339 or "2006-01-02 15:04").
	SimulatedTime string
}

type fileConfig struct {
	Environment        string `yaml:"environment"`
	ServerAddress      string `yaml:"server_address"`
	SubnetPrefix       string `yaml:"subnet_prefix"`
	DiscoveryEnabled   *bool  `yaml:"discovery_enabled"`
	ProbeTimeoutMS     int    `yaml:"probe_timeout_ms"`
	PollIntervalSecs   int    `yaml:"poll_interval_secs"`
	PingIntervalSecs   int    `yaml:"ping_interval_secs"`
	CacheDir           string `yaml:"cache_dir"`
	CacheMaxBytes      int64  `yaml:"cache_max_bytes"`
	FadeDurationMS     int    `yaml:"fade_duration_ms"`
	TransitionsEnabled *bool  `yaml:"transitions_enabled"`
	ImageDurationMS    int    `yaml:"image_duration_ms"`
	CaptureIntervalMS  int    `yaml:"capture_interval_ms"`
	StatusBind         string `yaml:"status_bind"`
	SpecialEventsDir   string `yaml:"special_events_dir"`
	SimulatedTime      string `yaml:"simulated_time"`
}

// Load reads an optional .env file, the optional YAML config named by
// SLATE_CONFIG, and the environment, and validates the result.
func Load() (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("SLATE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.CacheMaxBytes <= 0 {
		return nil, fmt.Errorf("cache size budget must be positive, got %d", cfg.CacheMaxBytes)
	}
	if cfg.PollInterval < time.Second {
		return nil, fmt.Errorf("poll interval %s is below one second", cfg.PollInterval)
	}
	return cfg, nil
}

func defaults() *Config {
	cacheDir := "./cache/media"
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "slateboard", "media")
	}
	return &Config{
		Environment:        "development",
		DiscoveryEnabled:   true,
		ProbeTimeout:       300 * time.Millisecond,
		PollInterval:       5 * time.Minute,
		PingInterval:       30 * time.Second,
		CacheDir:           cacheDir,
		CacheMaxBytes:      4 << 30,
		FadeDuration:       300 * time.Millisecond,
		TransitionsEnabled: true,
		ImageDuration:      5 * time.Second,
		CaptureInterval:    100 * time.Millisecond,
		StatusBind:         "127.0.0.1:8471",
		SpecialEventsDir:   "data",
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Environment != "" {
		c.Environment = fc.Environment
	}
	if fc.ServerAddress != "" {
		c.ServerAddress = fc.ServerAddress
	}
	if fc.SubnetPrefix != "" {
		c.SubnetPrefix = fc.SubnetPrefix
	}
	if fc.DiscoveryEnabled != nil {
		c.DiscoveryEnabled = *fc.DiscoveryEnabled
	}
	if fc.ProbeTimeoutMS > 0 {
		c.ProbeTimeout = time.Duration(fc.ProbeTimeoutMS) * time.Millisecond
	}
	if fc.PollIntervalSecs > 0 {
		c.PollInterval = time.Duration(fc.PollIntervalSecs) * time.Second
	}
	if fc.PingIntervalSecs > 0 {
		c.PingInterval = time.Duration(fc.PingIntervalSecs) * time.Second
	}
	if fc.CacheDir != "" {
		c.CacheDir = fc.CacheDir
	}
	if fc.CacheMaxBytes > 0 {
		c.CacheMaxBytes = fc.CacheMaxBytes
	}
	if fc.FadeDurationMS > 0 {
		c.FadeDuration = time.Duration(fc.FadeDurationMS) * time.Millisecond
	}
	if fc.TransitionsEnabled != nil {
		c.TransitionsEnabled = *fc.TransitionsEnabled
	}
	if fc.ImageDurationMS > 0 {
		c.ImageDuration = time.Duration(fc.ImageDurationMS) * time.Millisecond
	}
	if fc.CaptureIntervalMS > 0 {
		c.CaptureInterval = time.Duration(fc.CaptureIntervalMS) * time.Millisecond
	}
	if fc.StatusBind != "" {
		c.StatusBind = fc.StatusBind
	}
	if fc.SpecialEventsDir != "" {
		c.SpecialEventsDir = fc.SpecialEventsDir
	}
	if fc.SimulatedTime != "" {
		c.SimulatedTime = fc.SimulatedTime
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("SLATE_ENV", c.Environment)
	c.ServerAddress = getEnv("SLATE_SERVER", c.ServerAddress)
	c.SubnetPrefix = getEnv("SLATE_SUBNET_PREFIX", c.SubnetPrefix)
	c.DiscoveryEnabled = getEnvBool("SLATE_DISCOVERY_ENABLED", c.DiscoveryEnabled)
	c.ProbeTimeout = getEnvMillis("SLATE_PROBE_TIMEOUT_MS", c.ProbeTimeout)
	c.PollInterval = getEnvSecs("SLATE_POLL_INTERVAL_SECS", c.PollInterval)
	c.PingInterval = getEnvSecs("SLATE_PING_INTERVAL_SECS", c.PingInterval)
	c.CacheDir = getEnv("SLATE_CACHE_DIR", c.CacheDir)
	c.CacheMaxBytes = getEnvInt64("SLATE_CACHE_MAX_BYTES", c.CacheMaxBytes)
	c.FadeDuration = getEnvMillis("SLATE_FADE_DURATION_MS", c.FadeDuration)
	c.TransitionsEnabled = getEnvBool("SLATE_TRANSITIONS_ENABLED", c.TransitionsEnabled)
	c.ImageDuration = getEnvMillis("SLATE_IMAGE_DURATION_MS", c.ImageDuration)
	c.CaptureInterval = getEnvMillis("SLATE_CAPTURE_INTERVAL_MS", c.CaptureInterval)
	c.StatusBind = getEnv("SLATE_STATUS_BIND", c.StatusBind)
	c.SpecialEventsDir = getEnv("SLATE_SPECIAL_EVENTS_DIR", c.SpecialEventsDir)
	c.SimulatedTime = getEnv("SLATE_SIMULATED_TIME", c.SimulatedTime)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return def
}

func getEnvSecs(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return def
}
