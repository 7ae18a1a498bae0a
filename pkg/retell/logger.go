package retell

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging
type Logger struct {
	logger zerolog.Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level     LogLevel
	Pretty    bool
	Output    io.Writer
	AddSource bool
	Fields    map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// ParseLogLevel maps the RETELL_DEBUG_LEVEL vocabulary onto LogLevel.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "WARNING", "WARN":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(out)
	}

	switch config.Level {
	case TraceLevel:
		logger = logger.Level(zerolog.TraceLevel)
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarnLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	}

	logger = logger.With().Timestamp().Logger()

	if config.AddSource {
		logger = logger.With().Caller().Logger()
	}

	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &Logger{logger: logger}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogCallEvent logs a lifecycle event from the call client.
func (l *Logger) LogCallEvent(ev CallEvent) {
	e := l.logger.Info().
		Str("event_type", "call").
		Str("event", string(ev.Type))
	if ev.CallID != "" {
		e = e.Str("call_id", ev.CallID)
	}
	if ev.Message != "" {
		e = e.Str("reason", ev.Message)
	}
	e.Msg("Call event")
}

// LogStateChange logs a controller transition.
func (l *Logger) LogStateChange(from, to UIState) {
	e := l.logger.Info().
		Str("event_type", "state").
		Str("from", string(from.Status)).
		Str("to", string(to.Status))
	if to.ErrorMessage != "" {
		e = e.Str("error_message", to.ErrorMessage)
	}
	e.Msg("Call state changed")
}

// LogError logs a RetellError with structured fields
func (l *Logger) LogError(err *RetellError) {
	if err == nil {
		return
	}
	l.logger.Error().
		Str("error_code", err.Code).
		Time("error_time", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

var globalLogger = NewLogger(DefaultLogConfig())

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger replaces the default logger used when none is injected.
func SetGlobalLogger(logger *Logger) {
	if logger != nil {
		globalLogger = logger
	}
}
