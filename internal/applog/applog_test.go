package applog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ausocean/utils/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want int8
	}{
		{"debug", logging.Debug},
		{"", logging.Info},
		{"INFO", logging.Info},
		{"warn", logging.Warning},
		{"error", logging.Error},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, closer, err := New("info", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("detected fiducials", "image", "img_01")
	log.Debug("hidden at info level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "img_01") {
		t.Errorf("log file missing entry: %s", data)
	}
	if strings.Contains(string(data), "hidden at info level") {
		t.Errorf("debug entry written at info level: %s", data)
	}
}
