package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/nerrad567/roomgate/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "roomgate"

// Redacted replaces every secret the logger recognises.
const Redacted = "[REDACTED]"

// sensitiveKeyParts mark attribute keys whose values are never written.
var sensitiveKeyParts = []string{"secret", "password", "passwd", "token", "authorization", "credential"}

// sensitiveKeys are exact attribute keys treated the same way.
var sensitiveKeys = map[string]struct{}{"auth": {}, "ticket": {}}

var (
	// queryCredential matches the store's ?auth= parameter and ws tickets.
	queryCredential = regexp.MustCompile(`(?i)([?&](?:auth|ticket)=)[^&\s"']+`)

	// bearerCredential matches an Authorization header value.
	bearerCredential = regexp.MustCompile(`(?i)(bearer\s+)[^\s"']+`)
)

// Logger wraps slog.Logger. Entries carry the service name and build
// version, and pass through Scrub before they are written.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the output named in cfg.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for the default field
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWriter(out, cfg, version)
}

// NewWriter creates a Logger writing to w. cfg.Output is ignored.
func NewWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: scrubAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default creates an info-level JSON logger for use before configuration
// is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// With returns a Logger with additional default attributes.
//
//	fwdLogger := logger.With("component", "forwarder")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Scrub masks credentials embedded in free text: ?auth= and ?ticket=
// query values and bearer tokens.
func Scrub(s string) string {
	s = queryCredential.ReplaceAllString(s, "${1}"+Redacted)
	return bearerCredential.ReplaceAllString(s, "${1}"+Redacted)
}

// scrubAttr is the handler's ReplaceAttr hook.
func scrubAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}

	switch v := a.Value.Resolve(); v.Kind() {
	case slog.KindString:
		if s := v.String(); strings.ContainsAny(s, "?&=") || containsFold(s, "bearer") {
			return slog.String(a.Key, Scrub(s))
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			return slog.String(a.Key, Scrub(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// parseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
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
