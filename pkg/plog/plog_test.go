package plog

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetOutputCapturesAllLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("debug message")
	Info("info message", "key", "value")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	for _, want := range []string{"debug message", "info message", "warn message", "error message", "key=value"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQuietSuppressesBelowWarn(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetQuiet(true)
	defer SetQuiet(false)

	Debug("hidden debug")
	Info("hidden info")
	Warn("still visible")
	Error("also visible")

	out := buf.String()
	if strings.Contains(out, "hidden debug") || strings.Contains(out, "hidden info") {
		t.Error("quiet mode did not suppress below-warn output")
	}
	if !strings.Contains(out, "still visible") || !strings.Contains(out, "also visible") {
		t.Error("quiet mode suppressed warn or error output")
	}
	if !IsQuiet() {
		t.Error("IsQuiet() = false while quiet")
	}
}

func TestSetOutputResetsQuiet(t *testing.T) {
	var buf bytes.Buffer
	SetQuiet(true)
	SetOutput(&buf)

	if IsQuiet() {
		t.Error("SetOutput must reset quiet mode")
	}
	Info("back on")
	if !strings.Contains(buf.String(), "back on") {
		t.Error("info output missing after reset")
	}
}
