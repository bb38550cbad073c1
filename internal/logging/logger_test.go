package logging

import (
	"bytes"
	"strings"
	"testing"

	"opsbot/internal/observability"
)

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var component *ComponentLogger
	var logger Logger = component
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world") // should not panic
}

func TestStructuredFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := Structured(base, "test")
	logger.Info("hello %s", "world")

	if want := "hello world"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if !strings.Contains(buf.String(), "component=test") {
		t.Fatalf("expected component attribute, got %q", buf.String())
	}
}

func TestComponentLoggerRespectsLevelAndRedacts(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	SetLevel(LevelInfo)
	defer SetOutput(nil)

	logger := NewComponentLogger("dispatch")
	logger.Debug("hidden")
	logger.Info("Authorization: Bearer abcdef123456")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[INFO] [dispatch]") {
		t.Fatalf("expected level and component prefix, got %q", out)
	}
	if strings.Contains(out, "abcdef123456") {
		t.Fatalf("expected bearer token to be redacted, got %q", out)
	}
}

func TestStructuredWithNilBase(t *testing.T) {
	if _, ok := Structured(nil, "x").(discard); !ok {
		t.Fatalf("expected discard logger for nil base")
	}
	if _, ok := OrNop(nil).(discard); !ok {
		t.Fatalf("expected discard logger for nil interface")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "WARN": LevelWarn, "error": LevelError, "": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
