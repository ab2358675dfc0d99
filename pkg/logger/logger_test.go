package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestNew_WritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Output: &buf, Service: "auth-api"})
	log.Info().Str("principal_id", "p-1").Msg("login succeeded")

	entry := decode(t, &buf)
	if entry["service"] != "auth-api" || entry["message"] != "login succeeded" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Output: &buf})
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
}

func TestRequestLogger_CarriesRequestAndSubject(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf})

	ctx := WithRequest(context.Background(), base, "req-42")
	ctx = WithSubject(ctx, "p-1")
	log := From(ctx, zerolog.Nop())
	log.Info().Msg("principal updated")

	entry := decode(t, &buf)
	if entry["request_id"] != "req-42" || entry["subject"] != "p-1" {
		t.Fatalf("expected request fields, got %v", entry)
	}
}

func TestFrom_FallsBackOutsideRequest(t *testing.T) {
	var buf bytes.Buffer
	fallback := New(Options{Output: &buf})

	ctx := WithSubject(context.Background(), "p-1")
	log := From(ctx, fallback)
	log.Info().Msg("bootstrap admin created")

	entry := decode(t, &buf)
	if _, ok := entry["subject"]; ok {
		t.Fatalf("subject must not appear without a request logger: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
