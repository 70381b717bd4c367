// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MinJWTSecretLength is the shortest accepted HS256 secret.
const MinJWTSecretLength = 32

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateSecurity,
		c.validateStore,
		c.validateChat,
		c.validateBackplane,
		c.validateWebSocket,
		c.validateFiles,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled", "off":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if c.IsProduction() {
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production")
			}
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateChat() error {
	ch := c.Chat
	if ch.MaxContentLength < 1 {
		return fmt.Errorf("CHAT_MAX_CONTENT_LENGTH must be positive")
	}
	if ch.DefaultPageSize < 1 || ch.MaxPageSize < ch.DefaultPageSize {
		return fmt.Errorf("chat page sizes must satisfy 1 <= default (%d) <= max (%d)", ch.DefaultPageSize, ch.MaxPageSize)
	}
	if ch.MaxGroupSize < 2 {
		return fmt.Errorf("CHAT_MAX_GROUP_SIZE must be at least 2")
	}
	if strings.TrimSpace(ch.TombstoneText) == "" {
		return fmt.Errorf("CHAT_TOMBSTONE_TEXT must not be empty")
	}
	if ch.ConflictRetries < 1 {
		return fmt.Errorf("CHAT_CONFLICT_RETRIES must be at least 1")
	}
	return nil
}

func (c *Config) validateBackplane() error {
	b := c.Backplane
	switch b.Mode {
	case "local":
	case "nats":
		if b.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when BACKPLANE_MODE=nats")
		}
		u, err := url.Parse(b.NATSURL)
		if err != nil || (u.Scheme != "nats" && u.Scheme != "tls") || u.Host == "" {
			return fmt.Errorf("NATS_URL %q must be a nats:// or tls:// URL", b.NATSURL)
		}
		if b.EmbeddedServer && (b.EmbeddedPort < 1 || b.EmbeddedPort > 65535) {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("BACKPLANE_MODE must be local or nats, got %q", b.Mode)
	}
	if b.Topic == "" {
		return fmt.Errorf("BACKPLANE_TOPIC is required")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	w := c.WebSocket
	if w.PongWait <= 0 || w.WriteWait <= 0 {
		return fmt.Errorf("websocket pong_wait and write_wait must be positive")
	}
	if w.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if w.EventsPerSecond <= 0 || w.EventBurst < 1 {
		return fmt.Errorf("websocket event rate limit must be positive")
	}
	return nil
}

func (c *Config) validateFiles() error {
	if !c.Files.Enabled {
		return nil
	}
	if c.Files.Bucket == "" {
		return fmt.Errorf("FILES_BUCKET is required when FILES_ENABLED=true")
	}
	if c.Files.Endpoint != "" {
		u, err := url.Parse(c.Files.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("FILES_ENDPOINT %q must be an http(s) URL", c.Files.Endpoint)
		}
	}
	if c.Files.PresignTTL <= 0 {
		return fmt.Errorf("FILES_PRESIGN_TTL must be positive")
	}
	return nil
}
