package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// LogLevel is the severity of a published session log entry.
type LogLevel string

const (
	// LogLevelDebug represents debug-level logs
	LogLevelDebug LogLevel = "DEBUG"
	// LogLevelInfo represents informational logs
	LogLevelInfo LogLevel = "INFO"
	// LogLevelWarn represents warning logs
	LogLevelWarn LogLevel = "WARN"
	// LogLevelError represents error logs
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is one session lifecycle event in the shape monitoring tools
// consume off the wire.
type LogEntry struct {
	Timestamp string   `json:"timestamp"` // RFC3339 format
	Level     LogLevel `json:"level"`
	Backend   string   `json:"backend"`
	SessionID string   `json:"session_id"`
	Message   string   `json:"message"`
	Detail    string   `json:"detail,omitempty"` // error details
}

// Publisher is the sink session log entries are streamed to for remote
// monitoring. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Logger logs a session's lifecycle locally through slog and, when a
// publisher is supplied, also streams entries to xr.logs.<session-id>.
type Logger struct {
	backendName string
	sessionID   string
	pub         Publisher
	logger      *slog.Logger
}

// NewLogger creates a session logger. pub may be nil to disable remote
// streaming; logger may be nil to disable local logging.
func NewLogger(backendName, sessionID string, pub Publisher, logger *slog.Logger) *Logger {
	return &Logger{
		backendName: backendName,
		sessionID:   sessionID,
		pub:         pub,
		logger:      logger,
	}
}

// Debug logs a debug-level message.
func (sl *Logger) Debug(msg string) { sl.emit(LogLevelDebug, msg, nil) }

// Info logs an info-level message.
func (sl *Logger) Info(msg string) { sl.emit(LogLevelInfo, msg, nil) }

// Warn logs a warning message.
func (sl *Logger) Warn(msg string) { sl.emit(LogLevelWarn, msg, nil) }

// Error logs an error-level message with the causing error attached.
func (sl *Logger) Error(msg string, err error) { sl.emit(LogLevelError, msg, err) }

func (sl *Logger) emit(level LogLevel, msg string, cause error) {
	if sl.logger != nil {
		attrs := []any{"backend", sl.backendName, "session", sl.sessionID}
		switch level {
		case LogLevelDebug:
			sl.logger.Debug(msg, attrs...)
		case LogLevelInfo:
			sl.logger.Info(msg, attrs...)
		case LogLevelWarn:
			sl.logger.Warn(msg, attrs...)
		case LogLevelError:
			sl.logger.Error(msg, append(attrs, "error", cause)...)
		}
	}
	sl.publish(level, msg, cause)
}

func (sl *Logger) publish(level LogLevel, msg string, cause error) {
	if sl.pub == nil {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Backend:   sl.backendName,
		SessionID: sl.sessionID,
		Message:   msg,
	}
	if cause != nil {
		entry.Detail = fmt.Sprintf("%+v", cause)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		if sl.logger != nil {
			sl.logger.Error("failed to marshal log entry", "error", err)
		}
		return
	}

	subject := fmt.Sprintf("xr.logs.%s", sl.sessionID)
	if err := sl.pub.Publish(subject, data); err != nil {
		if sl.logger != nil {
			sl.logger.Error("failed to publish log entry", "error", err, "subject", subject)
		}
	}
}
