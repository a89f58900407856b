package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("expected warn and error messages, got %q", out)
	}
	if !strings.Contains(out, prefix) {
		t.Errorf("expected prefix %q in %q", prefix, out)
	}
}

func TestSetLevelNone(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)
	l.SetLevel(LevelNone)

	l.Error("should not appear")
	if buf.Len() != 0 {
		t.Errorf("LevelNone wrote output: %q", buf.String())
	}
	if l.Level() != LevelNone {
		t.Errorf("Level() = %v, want %v", l.Level(), LevelNone)
	}
}

func TestSetOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := New(&first, LevelInfo)
	l.SetOutput(&second)
	l.Info("moved")

	if first.Len() != 0 {
		t.Errorf("old writer received output: %q", first.String())
	}
	if !strings.Contains(second.String(), "moved") {
		t.Errorf("new writer missing output: %q", second.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"off", LevelNone, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if LevelNone.String() != "" {
		t.Errorf("LevelNone.String() = %q", LevelNone.String())
	}
}
