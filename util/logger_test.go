package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3) // debug level
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), output)
	}

	wantPrefixes := []string{"[ERR]", "[WRN]", "[INF]", "[VRB]", "[DBG]"}
	for i, prefix := range wantPrefixes {
		if !strings.Contains(lines[i], prefix) {
			t.Errorf("line %d %q missing prefix %q", i, lines[i], prefix)
		}
	}
}

func TestLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(0)
	l.SetOutput(&buf)

	l.Info("hidden")
	l.Verbose("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("quiet logger produced output: %q", buf.String())
	}

	l.Error("visible")
	if !strings.Contains(buf.String(), "[ERR] visible") {
		t.Errorf("errors must print at any level, got %q", buf.String())
	}
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(true)

	l.Info("stamped")
	line := strings.TrimSpace(buf.String())
	// "HH:MM:SS.mmm [INF] stamped"
	if !strings.HasSuffix(line, "[INF] stamped") {
		t.Fatalf("unexpected line %q", line)
	}
	if len(strings.Fields(line)) != 3 {
		t.Errorf("expected timestamp prefix in %q", line)
	}
}
