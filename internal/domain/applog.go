package domain

import "time"

// LogLevel is the severity of an application log entry.
type LogLevel string

const (
	LevelTrace    LogLevel = "TRACE"
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// LogEntry is one structured application log record, kept in the
// in-memory history and broadcast to subscribers.
type LogEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Target  string    `json:"target"`
	Message string    `json:"message"`
}
