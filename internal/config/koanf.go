// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file. The first
// file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/campusnet/config.yaml",
	"/etc/campusnet/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			TokenCookieName: "token",
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			DefaultRole:     "student",
		},
		Store: StoreConfig{
			Path:         "/data/chat",
			SyncWrites:   true,
			MemTableSize: 64 << 20,
			GCInterval:   10 * time.Minute,
		},
		Chat: ChatConfig{
			MaxContentLength: 2000,
			DefaultPageSize:  50,
			MaxPageSize:      100,
			MaxGroupSize:     256,
			TombstoneText:    "This message was deleted",
			ConflictRetries:  64,
			SearchLimit:      20,
		},
		Backplane: BackplaneConfig{
			Mode:              "local",
			Topic:             "campusnet.chat.fanout",
			NATSURL:           "nats://127.0.0.1:4222",
			EmbeddedServer:    false,
			EmbeddedHost:      "127.0.0.1",
			EmbeddedPort:      4222,
			MaxReconnects:     -1,
			ReconnectWait:     2 * time.Second,
			BreakerMaxFailure: 5,
			BreakerTimeout:    30 * time.Second,
			BufferSize:        1024,
		},
		WebSocket: WebSocketConfig{
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageSize:  16 << 10,
			SendBuffer:      256,
			EventsPerSecond: 10,
			EventBurst:      20,
		},
		Files: FilesConfig{
			Enabled:    false,
			PresignTTL: 15 * time.Minute,
			MaxSize:    25 << 20,
		},
		Directory: DirectoryConfig{
			CacheSize: 10000,
			CacheTTL:  5 * time.Minute,
		},
	}
}

// Load reads configuration with koanf using three layers:
//  1. built-in defaults
//  2. optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are keys that accept comma-separated strings from env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"websocket.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to config keys.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"token_cookie_name":   "security.token_cookie_name",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"default_role":        "security.default_role",
	"authz_policy_path":   "security.policy_path",

	"store_path":           "store.path",
	"store_in_memory":      "store.in_memory",
	"store_sync_writes":    "store.sync_writes",
	"store_mem_table_size": "store.mem_table_size",
	"store_gc_interval":    "store.gc_interval",

	"chat_max_content_length": "chat.max_content_length",
	"chat_default_page_size":  "chat.default_page_size",
	"chat_max_page_size":      "chat.max_page_size",
	"chat_max_group_size":     "chat.max_group_size",
	"chat_tombstone_text":     "chat.tombstone_text",
	"chat_conflict_retries":   "chat.conflict_retries",
	"chat_search_limit":       "chat.search_limit",

	"backplane_mode":       "backplane.mode",
	"backplane_topic":      "backplane.topic",
	"nats_url":             "backplane.nats_url",
	"nats_embedded":        "backplane.embedded_server",
	"nats_embedded_host":   "backplane.embedded_host",
	"nats_embedded_port":   "backplane.embedded_port",
	"nats_max_reconnects":  "backplane.max_reconnects",
	"nats_reconnect_wait":  "backplane.reconnect_wait",
	"backplane_buffer":     "backplane.buffer_size",
	"breaker_max_failures": "backplane.breaker_max_failures",
	"breaker_timeout":      "backplane.breaker_timeout",

	"ws_write_wait":        "websocket.write_wait",
	"ws_pong_wait":         "websocket.pong_wait",
	"ws_max_message_size":  "websocket.max_message_size",
	"ws_send_buffer":       "websocket.send_buffer",
	"ws_events_per_second": "websocket.events_per_second",
	"ws_event_burst":       "websocket.event_burst",
	"ws_allowed_origins":   "websocket.allowed_origins",

	"files_enabled":     "files.enabled",
	"files_bucket":      "files.bucket",
	"files_region":      "files.region",
	"files_endpoint":    "files.endpoint",
	"files_presign_ttl": "files.presign_ttl",
	"files_max_size":    "files.max_size",

	"directory_cache_size": "directory.cache_size",
	"directory_cache_ttl":  "directory.cache_ttl",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
