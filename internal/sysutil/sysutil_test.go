package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	origLevel, origLog, origCtx := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLog
		zerolog.DefaultContextLogger = origCtx
	})

	var buf bytes.Buffer
	l := SetupLogger("warn", false, &buf)
	l.Info().Msg("dropped")
	l.Warn().Str("user_id", "u1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines; want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["message"] != "kept" || rec["user_id"] != "u1" || rec["service"] != "pdfops" {
		t.Fatalf("unexpected record: %v", rec)
	}

	// Contexts without a request logger fall back to the global one.
	buf.Reset()
	zerolog.Ctx(context.Background()).Error().Msg("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("default context logger not installed: %q", buf.String())
	}
}

func TestSetupLogger_Pretty(t *testing.T) {
	origLevel, origLog, origCtx := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLog
		zerolog.DefaultContextLogger = origCtx
	})

	var buf bytes.Buffer
	l := SetupLogger("debug", true, &buf)
	l.Debug().Msg("hello console")
	out := buf.String()
	if !strings.Contains(out, "hello console") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}
