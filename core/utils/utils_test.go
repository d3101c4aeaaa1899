package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMinutesBetweenFloors(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90*time.Minute + 59*time.Second)
	if got := MinutesBetween(start, end); got != 90 {
		t.Fatalf("expected 90 minutes, got %d", got)
	}
	if got := MinutesBetween(end, start); got != 0 {
		t.Fatalf("expected 0 for negative span, got %d", got)
	}
}

func TestRandStringLength(t *testing.T) {
	s, err := RandString(16)
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(s))
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf)
	l.Errorf("boom %d", 7)
	if !strings.Contains(buf.String(), `"msg":"boom 7"`) || !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Fatalf("unexpected log line %q", buf.String())
	}
	var nilLogger *Logger
	nilLogger.Printf("ignored")
}
