package tangguh

import (
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger receives diagnostic output when debug logging is enabled.
// Key-value pairs alternate key, value.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects which lifecycle points produce log output.
type DebugConfig struct {
	Enabled bool

	LogRequests       bool
	LogResponses      bool
	LogRetries        bool
	LogCacheHits      bool
	LogRateLimit      bool
	LogCircuitBreaker bool
	LogErrors         bool

	// RequestIDGen generates per-request correlation IDs attached to log
	// lines and errors. Defaults to random UUIDs.
	RequestIDGen func() string
}

// enabled reports whether any debug logging should happen.
func (d *DebugConfig) enabled() bool {
	return d != nil && d.Enabled
}

func (d *DebugConfig) requestID() string {
	if d == nil || d.RequestIDGen == nil {
		return uuid.NewString()
	}
	return d.RequestIDGen()
}

// defaultDebugConfig enables everything; used by WithDebug.
func defaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:           true,
		LogRequests:       true,
		LogResponses:      true,
		LogRetries:        true,
		LogCacheHits:      true,
		LogRateLimit:      true,
		LogCircuitBreaker: true,
		LogErrors:         true,
	}
}

// SimpleLogger writes key-value log lines through the standard library
// logger. Useful for tests and small programs.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a SimpleLogger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logf("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logf("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logf("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logf("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) logf(level, msg string, keysAndValues ...interface{}) {
	args := make([]interface{}, 0, len(keysAndValues)+2)
	args = append(args, "["+level+"]", msg)
	args = append(args, keysAndValues...)
	l.logger.Println(args...)
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface, producing
// structured JSON output.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l}
}

func (z *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Debug(), msg, keysAndValues)
}

func (z *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Info(), msg, keysAndValues)
}

func (z *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Warn(), msg, keysAndValues)
}

func (z *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Error(), msg, keysAndValues)
}

func (z *ZerologLogger) emit(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}
