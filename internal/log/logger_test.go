// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"chatty", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Named("capture").Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below the level were logged:\n%s", out)
	}
	if !strings.Contains(out, "[WARN ] shown 3") {
		t.Errorf("missing warning:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] capture: shown 4") {
		t.Errorf("missing named error:\n%s", out)
	}
}

func TestConfigure(t *testing.T) {
	buf := capture(t)

	Configure("error", true)
	if GetLevel() != LevelDebug {
		t.Errorf("verbose should force debug, got %v", GetLevel())
	}

	Configure("nonsense", false)
	if GetLevel() != LevelInfo {
		t.Errorf("unknown level should fall back to info, got %v", GetLevel())
	}
	if !strings.Contains(buf.String(), `unknown level "nonsense"`) {
		t.Errorf("expected a warning about the unknown level, got:\n%s", buf.String())
	}
}
