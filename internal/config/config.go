/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package config loads the controller configuration document and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the device provisioning step installs the document.
const DefaultPath = "/etc/grimnir-signage/config.yaml"

// Document mirrors the on-disk YAML layout. Durations are whole seconds.
type Document struct {
	Environment string `yaml:"environment"`

	HTTP struct {
		Bind string `yaml:"bind"`
		Port int    `yaml:"port"`
	} `yaml:"http"`

	Metrics struct {
		Bind string `yaml:"bind"`
	} `yaml:"metrics"`

	Tracing struct {
		Enabled      bool    `yaml:"enabled"`
		OTLPEndpoint string  `yaml:"otlp_endpoint"`
		SampleRate   float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Device struct {
		Homepage string `yaml:"homepage"`
	} `yaml:"device"`

	Display struct {
		ChromiumBinary string `yaml:"chromium_binary"`
		FlagsFile      string `yaml:"flags_file"`
		DebugPort      int    `yaml:"debug_port"`
		MpvBinary      string `yaml:"mpv_binary"`
		ImvBinary      string `yaml:"imv_binary"`
		GracePeriod    int    `yaml:"grace_period"`
		BackoffCeiling int    `yaml:"backoff_ceiling"`
	} `yaml:"display"`

	Media struct {
		LocalPath      string `yaml:"local_path"`
		CachePath      string `yaml:"cache_path"`
		NetworkPath    string `yaml:"network_path"`
		MetadataPath   string `yaml:"metadata_path"`
		ImageDuration  int    `yaml:"image_duration"`
		MaxUploadMB    int    `yaml:"max_upload_mb"`
		FfprobeTimeout int    `yaml:"ffprobe_timeout"`
	} `yaml:"media"`

	Scheduler struct {
		TickInterval   int `yaml:"tick_interval"`
		OverrideWindow int `yaml:"override_window"`
	} `yaml:"scheduler"`

	Broadcast struct {
		HeartbeatInterval int `yaml:"heartbeat_interval"`
		ClientBuffer      int `yaml:"client_buffer"`
	} `yaml:"broadcast"`

	Security struct {
		PasswordHash string `yaml:"password_hash"`
		TokenSecret  string `yaml:"token_secret"`
		TokenTTL     int    `yaml:"token_ttl"`
	} `yaml:"security"`

	State struct {
		PlaylistPath string `yaml:"playlist_path"`
	} `yaml:"state"`
}

// Config is the validated, typed process configuration.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	Homepage string

	ChromiumBinary string
	FlagsFile      string
	DebugPort      int
	MpvBinary      string
	ImvBinary      string
	GracePeriod    time.Duration
	BackoffCeiling time.Duration

	MediaLocalPath   string
	MediaCachePath   string
	MediaNetworkPath string
	MetadataPath     string
	ImageDuration    time.Duration
	MaxUploadBytes   int64
	FfprobeTimeout   time.Duration

	TickInterval   time.Duration
	OverrideWindow time.Duration

	HeartbeatInterval time.Duration
	ClientBuffer      int

	PasswordHash string
	TokenSecret  string
	TokenTTL     time.Duration

	PlaylistPath string
}

// Load reads the document at path (missing file is fine: defaults apply),
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var doc Document
	if path == "" {
		path = getEnv("GRIMNIR_SIGNAGE_CONFIG", DefaultPath)
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{
		Environment: getEnv("GRIMNIR_SIGNAGE_ENV", defaultString(doc.Environment, "production")),
		HTTPBind:    getEnv("GRIMNIR_SIGNAGE_HTTP_BIND", defaultString(doc.HTTP.Bind, "0.0.0.0")),
		HTTPPort:    getEnvInt("GRIMNIR_SIGNAGE_HTTP_PORT", defaultInt(doc.HTTP.Port, 8080)),
		MetricsBind: getEnv("GRIMNIR_SIGNAGE_METRICS_BIND", defaultString(doc.Metrics.Bind, "127.0.0.1:9000")),

		TracingEnabled:    getEnvBool("GRIMNIR_SIGNAGE_TRACING_ENABLED", doc.Tracing.Enabled),
		OTLPEndpoint:      getEnv("GRIMNIR_SIGNAGE_OTLP_ENDPOINT", defaultString(doc.Tracing.OTLPEndpoint, "localhost:4317")),
		TracingSampleRate: defaultFloat(doc.Tracing.SampleRate, 1.0),

		Homepage: getEnv("GRIMNIR_SIGNAGE_HOMEPAGE", defaultString(doc.Device.Homepage, "https://example.com")),

		ChromiumBinary: getEnv("GRIMNIR_SIGNAGE_CHROMIUM_BINARY", defaultString(doc.Display.ChromiumBinary, "/usr/bin/chromium-browser")),
		FlagsFile:      defaultString(doc.Display.FlagsFile, "/etc/grimnir-signage/chromium_flags"),
		DebugPort:      getEnvInt("GRIMNIR_SIGNAGE_DEBUG_PORT", defaultInt(doc.Display.DebugPort, 9222)),
		MpvBinary:      defaultString(doc.Display.MpvBinary, "mpv"),
		ImvBinary:      defaultString(doc.Display.ImvBinary, "imv"),
		GracePeriod:    seconds(defaultInt(doc.Display.GracePeriod, 5)),
		BackoffCeiling: seconds(defaultInt(doc.Display.BackoffCeiling, 30)),

		MediaLocalPath:   getEnv("GRIMNIR_SIGNAGE_MEDIA_ROOT", defaultString(doc.Media.LocalPath, "/var/lib/grimnir-signage/media/local")),
		MediaCachePath:   defaultString(doc.Media.CachePath, "/var/lib/grimnir-signage/media/cache"),
		MediaNetworkPath: doc.Media.NetworkPath,
		MetadataPath:     defaultString(doc.Media.MetadataPath, "/var/lib/grimnir-signage/metadata.json"),
		ImageDuration:    seconds(defaultInt(doc.Media.ImageDuration, 30)),
		MaxUploadBytes:   int64(defaultInt(doc.Media.MaxUploadMB, 200)) * 1024 * 1024,
		FfprobeTimeout:   seconds(defaultInt(doc.Media.FfprobeTimeout, 5)),

		TickInterval:   seconds(getEnvInt("GRIMNIR_SIGNAGE_TICK_INTERVAL", defaultInt(doc.Scheduler.TickInterval, 15))),
		OverrideWindow: seconds(doc.Scheduler.OverrideWindow),

		HeartbeatInterval: seconds(defaultInt(doc.Broadcast.HeartbeatInterval, 5)),
		ClientBuffer:      defaultInt(doc.Broadcast.ClientBuffer, 16),

		PasswordHash: getEnv("GRIMNIR_SIGNAGE_PASSWORD_HASH", doc.Security.PasswordHash),
		TokenSecret:  getEnv("GRIMNIR_SIGNAGE_TOKEN_SECRET", doc.Security.TokenSecret),
		TokenTTL:     seconds(defaultInt(doc.Security.TokenTTL, 3600)),

		PlaylistPath: defaultString(doc.State.PlaylistPath, "/var/lib/grimnir-signage/playlists.json"),
	}

	if cfg.TickInterval < 5*time.Second {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.OverrideWindow <= 0 {
		cfg.OverrideWindow = 2 * cfg.TickInterval
	}
	if cfg.ImageDuration < 5*time.Second {
		cfg.ImageDuration = 5 * time.Second
	}
	if cfg.TokenTTL < 5*time.Minute {
		cfg.TokenTTL = 5 * time.Minute
	}
	if cfg.ClientBuffer < 1 {
		cfg.ClientBuffer = 1
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid http port %d", cfg.HTTPPort)
	}

	return cfg, nil
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func defaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func defaultFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}
