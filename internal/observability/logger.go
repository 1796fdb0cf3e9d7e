package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger.
// Only the first call takes effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		var out io.Writer = os.Stdout
		if pretty {
			// Pretty console output for `agent dev`
			out = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
		globalLogger = newLogger(out, level)
		log.Logger = globalLogger
	})
}

func newLogger(out io.Writer, level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	return zerolog.New(out).With().Timestamp().Str("service", "voice-agent").Logger()
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// ForJob returns a logger scoped to one dispatched call session
func ForJob(jobID, room string) zerolog.Logger {
	return WithCorrelationID("").With().
		Str("job_id", jobID).
		Str("room", room).
		Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
