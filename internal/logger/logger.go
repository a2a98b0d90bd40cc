package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names attached to every log line as the "component" field.
const (
	APP     = "APP"
	CHAT    = "CHAT"
	CONFIG  = "CONFIG"
	HANDLER = "HANDLER"
	REDIS   = "REDIS"
	REST    = "REST"
	SERVICE = "SERVICE"
	SESSION = "SESSION"
	SQLITE  = "SQLITE"
	STORE   = "STORE"
	STREAM  = "STREAM"
)

func getLogLevel() zerolog.Level {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func getWriter(out io.Writer) io.Writer {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

// Init configures the global zerolog logger from LOG_LEVEL and LOG_FORMAT.
func Init() {
	InitWithWriter(os.Stderr)
}

// InitWithWriter is Init with an explicit destination, used by tests and the CLI.
func InitWithWriter(out io.Writer) {
	zerolog.SetGlobalLevel(getLogLevel())
	log.Logger = zerolog.New(getWriter(out)).With().Timestamp().Logger()
}

// For returns a child of the global logger tagged with the component.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
