package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected log.Level
	}{
		// Debug level
		{"debug lowercase", "debug", log.DebugLevel},
		{"debug uppercase", "DEBUG", log.DebugLevel},
		{"debug mixed case", "Debug", log.DebugLevel},
		{"verbose lowercase", "verbose", log.DebugLevel},
		{"verbose uppercase", "VERBOSE", log.DebugLevel},
		{"verbose mixed case", "Verbose", log.DebugLevel},

		// Info level
		{"info lowercase", "info", log.InfoLevel},
		{"info uppercase", "INFO", log.InfoLevel},
		{"info mixed case", "Info", log.InfoLevel},

		// Warn level
		{"warn lowercase", "warn", log.WarnLevel},
		{"warn uppercase", "WARN", log.WarnLevel},
		{"warning lowercase", "warning", log.WarnLevel},
		{"warning uppercase", "WARNING", log.WarnLevel},
		{"warning mixed case", "Warning", log.WarnLevel},

		// Error level
		{"error lowercase", "error", log.ErrorLevel},
		{"error uppercase", "ERROR", log.ErrorLevel},
		{"error mixed case", "Error", log.ErrorLevel},

		// Fatal level (quiet/silent)
		{"quiet lowercase", "quiet", log.FatalLevel},
		{"quiet uppercase", "QUIET", log.FatalLevel},
		{"silent lowercase", "silent", log.FatalLevel},
		{"silent uppercase", "SILENT", log.FatalLevel},

		// Default (unknown) -> InfoLevel
		{"unknown string", "unknown", log.InfoLevel},
		{"empty string", "", log.InfoLevel},
		{"random string", "foobar", log.InfoLevel},
		{"numeric string", "123", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset to a known state before each test
			log.SetLevel(log.PanicLevel)

			SetLogLevel(tt.input)

			got := log.GetLevel()
			if got != tt.expected {
				t.Errorf("SetLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConfigureLogOutput_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Cleanup(func() { _ = ConfigureLogOutput(false, "") })

	if err := ConfigureLogOutput(true, dir); err != nil {
		t.Fatalf("ConfigureLogOutput() error = %v", err)
	}
	log.SetLevel(log.InfoLevel)
	log.Info("rotating writer ready")

	data, err := os.ReadFile(filepath.Join(dir, "chatproxy.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "rotating writer ready") {
		t.Errorf("log file content = %q", data)
	}

	if err = ConfigureLogOutput(false, ""); err != nil {
		t.Fatalf("switching back to stdout: %v", err)
	}
	if log.StandardLogger().Out != os.Stdout {
		t.Error("output should be stdout after disabling file logging")
	}
}
