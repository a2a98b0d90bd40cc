package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		envLevel string
		want     zerolog.Level
	}{
		{"Debug level", "DEBUG", zerolog.DebugLevel},
		{"Info level", "INFO", zerolog.InfoLevel},
		{"Warn level", "WARN", zerolog.WarnLevel},
		{"Error level", "ERROR", zerolog.ErrorLevel},
		{"Empty defaults to Info", "", zerolog.InfoLevel},
		{"Invalid defaults to Info", "INVALID", zerolog.InfoLevel},
		{"Case insensitive", "debug", zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("LOG_LEVEL", tt.envLevel)
			defer os.Unsetenv("LOG_LEVEL")

			if got := getLogLevel(); got != tt.want {
				t.Errorf("getLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		setLevel  string
		write     func(l zerolog.Logger)
		shouldLog bool
		contains  string
	}{
		{
			name:      "Debug logs when Debug",
			setLevel:  "DEBUG",
			write:     func(l zerolog.Logger) { l.Debug().Msg("debug message") },
			shouldLog: true,
			contains:  "debug message",
		},
		{
			name:      "Debug doesn't log when Info",
			setLevel:  "INFO",
			write:     func(l zerolog.Logger) { l.Debug().Msg("debug message") },
			shouldLog: false,
		},
		{
			name:      "Info doesn't log when Error",
			setLevel:  "ERROR",
			write:     func(l zerolog.Logger) { l.Info().Msg("info message") },
			shouldLog: false,
		},
		{
			name:      "Error logs when Debug",
			setLevel:  "DEBUG",
			write:     func(l zerolog.Logger) { l.Error().Msg("error message") },
			shouldLog: true,
			contains:  "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("LOG_LEVEL", tt.setLevel)
			defer os.Unsetenv("LOG_LEVEL")
			defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

			var buf bytes.Buffer
			InitWithWriter(&buf)
			tt.write(For("TEST"))

			output := strings.TrimSpace(buf.String())
			if hasOutput := output != ""; hasOutput != tt.shouldLog {
				t.Errorf("Expected log output: %v, got output: %q", tt.shouldLog, output)
			}
			if tt.shouldLog {
				if !strings.Contains(output, tt.contains) {
					t.Errorf("Expected output to contain %q, got %q", tt.contains, output)
				}
				if !strings.Contains(output, `"component":"TEST"`) {
					t.Errorf("Expected component field in %q", output)
				}
			}
		})
	}
}
