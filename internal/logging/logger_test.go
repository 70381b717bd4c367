// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	if !ValidLevel("debug") {
		t.Error("debug should be valid")
	}
	if ValidLevel("loud") {
		t.Error("loud should not be valid")
	}
}

// The tests below reconfigure the global logger and must not run in parallel.

func TestInitAndCtx(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(Config{Level: "disabled"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "user-9")
	ctx = ContextWithConnID(ctx, "conn-3")
	Ctx(ctx).Info().Str("conversation_id", "c1").Msg("marked read")

	out := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"user_id":"user-9"`, `"conn_id":"conn-3"`, `"message":"marked read"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %s, got: %s", want, out)
		}
	}
}

func TestCtxWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{Level: "disabled"})

	Ctx(context.Background()).Info().Msg("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id in %s", buf.String())
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{Level: "disabled"})

	logger := NewSlogLogger().With("supervisor", "campusnet").WithGroup("svc")
	logger.Warn("service restarted", slog.Int("attempt", 2))
	logger.Debug("filtered out")

	out := buf.String()
	if !strings.Contains(out, `"supervisor":"campusnet"`) {
		t.Errorf("missing attr in %s", out)
	}
	if !strings.Contains(out, `"svc.attempt":2`) {
		t.Errorf("missing grouped attr in %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug record should be filtered at info level: %s", out)
	}
}
