package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "coopbridge"

// redacted replaces the value of any attribute that looks like a secret.
const redacted = "[redacted]"

// Build identifies the running bridge on every entry.
type Build struct {
	Version string
	Site    string // omitted when empty
}

// Logger is a slog.Logger carrying the bridge's default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging block of config.yaml.
//
// Every entry carries service, version and (when set) site. Attributes
// named like credentials (password, token, secret) are redacted.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - build: Version and site id stamped on every entry
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, build Build) *Logger {
	return NewWithWriter(cfg, build, destination(cfg.Output))
}

// NewWithWriter is New writing to w instead of cfg.Output. Tests use it
// to capture entries.
func NewWithWriter(cfg config.LoggingConfig, build Build, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	attrs := []slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", build.Version),
	}
	if build.Site != "" {
		attrs = append(attrs, slog.String("site", build.Site))
	}
	return &Logger{Logger: slog.New(handler.WithAttrs(attrs))}
}

// destination maps logging.output to a writer. Unknown values go to stdout.
func destination(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard", "none":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, marker := range []string{"password", "token", "secret"} {
		if strings.Contains(key, marker) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the subsystem that wrote them.
//
//	log.Component("hub").Info("observer registered") // component=hub
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before config.yaml is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, Build{Version: "dev"})
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
