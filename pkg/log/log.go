package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Components derive child loggers
// from it rather than wiring their own outputs.
var Logger zerolog.Logger

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	// Level is the minimum level emitted. Unknown values fall back to info.
	Level Level

	// JSONOutput selects machine-readable output over the console format.
	JSONOutput bool

	// Output overrides the destination; nil means stdout.
	Output io.Writer

	// HostID, when non-empty, is stamped on every line so output from
	// several archive hosts can be aggregated downstream.
	HostID string
}

// Init initializes the global logger
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.HostID != "" {
		ctx = ctx.Str("host_id", cfg.HostID)
	}
	Logger = ctx.Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID creates a child logger scoped to one archive request, so
// every line of the operation correlates in aggregated output.
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithDiskID creates a child logger scoped to one managed volume.
func WithDiskID(diskID string) zerolog.Logger {
	return Logger.With().Str("disk_id", diskID).Logger()
}

// WithFileID creates a child logger scoped to one archived file.
func WithFileID(fileID string) zerolog.Logger {
	return Logger.With().Str("file_id", fileID).Logger()
}
