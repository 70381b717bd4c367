// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package config loads Campusnet configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
	Store     StoreConfig     `koanf:"store"`
	Chat      ChatConfig      `koanf:"chat"`
	Backplane BackplaneConfig `koanf:"backplane"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Files     FilesConfig     `koanf:"files"`
	Directory DirectoryConfig `koanf:"directory"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds token validation, CORS and rate limiting settings.
// Tokens are issued by the identity service and signed with JWTSecret.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	TokenCookieName   string        `koanf:"token_cookie_name"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	DefaultRole       string        `koanf:"default_role"`
	PolicyPath        string        `koanf:"policy_path"`
}

// StoreConfig configures the Badger database holding conversations and messages.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
	// MemTableSize in bytes. Badger default is 64MB.
	MemTableSize int64 `koanf:"mem_table_size"`
	// GCInterval controls value log garbage collection. Zero disables it.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ChatConfig holds conversation and message rules.
type ChatConfig struct {
	MaxContentLength int    `koanf:"max_content_length"`
	DefaultPageSize  int    `koanf:"default_page_size"`
	MaxPageSize      int    `koanf:"max_page_size"`
	MaxGroupSize     int    `koanf:"max_group_size"`
	TombstoneText    string `koanf:"tombstone_text"`
	ConflictRetries  int    `koanf:"conflict_retries"`
	SearchLimit      int    `koanf:"search_limit"`
}

// BackplaneConfig selects how fan-out events reach other instances.
//
// Mode "local" keeps delivery in-process. Mode "nats" publishes every
// event to a NATS subject that all instances subscribe to.
type BackplaneConfig struct {
	Mode              string        `koanf:"mode"`
	Topic             string        `koanf:"topic"`
	NATSURL           string        `koanf:"nats_url"`
	EmbeddedServer    bool          `koanf:"embedded_server"`
	EmbeddedHost      string        `koanf:"embedded_host"`
	EmbeddedPort      int           `koanf:"embedded_port"`
	MaxReconnects     int           `koanf:"max_reconnects"`
	ReconnectWait     time.Duration `koanf:"reconnect_wait"`
	BreakerMaxFailure uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
	BufferSize        int64         `koanf:"buffer_size"`
}

// WebSocketConfig holds connection tuning for the realtime endpoint.
type WebSocketConfig struct {
	WriteWait       time.Duration `koanf:"write_wait"`
	PongWait        time.Duration `koanf:"pong_wait"`
	MaxMessageSize  int64         `koanf:"max_message_size"`
	SendBuffer      int           `koanf:"send_buffer"`
	EventsPerSecond float64       `koanf:"events_per_second"`
	EventBurst      int           `koanf:"event_burst"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// FilesConfig configures resolution of uploaded attachments held in S3.
type FilesConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Bucket     string        `koanf:"bucket"`
	Region     string        `koanf:"region"`
	Endpoint   string        `koanf:"endpoint"`
	PresignTTL time.Duration `koanf:"presign_ttl"`
	MaxSize    int64         `koanf:"max_size"`
}

// DirectoryConfig tunes the user profile cache.
type DirectoryConfig struct {
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// PingPeriod derives the keepalive interval from PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

// IsProduction reports whether the server runs with production checks.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
