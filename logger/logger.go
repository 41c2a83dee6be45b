package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	unifiederrors "cellar/errors"
)

// Level orders log output from most to least verbose
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// ParseLevel maps a config string onto a Level
func ParseLevel(name string) (Level, bool) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	return level, ok
}

// SetLevel sets the process-wide minimum level
func SetLevel(level Level) {
	currentLevel.Store(int32(level))
}

// Enabled reports whether messages at level are printed
func Enabled(level Level) bool {
	return int32(level) >= currentLevel.Load()
}

// Logger provides standardized logging methods
type Logger struct {
	component string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// Trace logs per-row detail, off unless LOG_LEVEL=trace
func (l *Logger) Trace(operation, message string, args ...interface{}) {
	if !Enabled(LevelTrace) {
		return
	}
	log.Printf("[TRACE] %s.%s: %s", l.component, operation, fmt.Sprintf(message, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(operation, message string, args ...interface{}) {
	if !Enabled(LevelDebug) {
		return
	}
	log.Printf("[DEBUG] %s.%s: %s", l.component, operation, fmt.Sprintf(message, args...))
}

// Info logs an informational message
func (l *Logger) Info(operation, message string, args ...interface{}) {
	if !Enabled(LevelInfo) {
		return
	}
	log.Printf("[INFO] %s.%s: %s", l.component, operation, fmt.Sprintf(message, args...))
}

// Warning logs a warning and records it in the error system
func (l *Logger) Warning(operation, message string, args ...interface{}) {
	msg := fmt.Sprintf(message, args...)
	if Enabled(LevelWarn) {
		log.Printf("[WARN] %s.%s: %s", l.component, operation, msg)
	}
	unifiederrors.Get().Warning(l.component, operation, msg)
}

// Error logs an error to both log and error system
func (l *Logger) Error(operation string, err error) {
	if Enabled(LevelError) {
		log.Printf("[ERROR] %s.%s: %v", l.component, operation, err)
	}
	unifiederrors.Get().Classify(l.component, operation, err)
}

// DatabaseError logs a database error
func (l *Logger) DatabaseError(operation string, err error) {
	if Enabled(LevelError) {
		log.Printf("[ERROR] %s.%s: Database error: %v", l.component, operation, err)
	}
	unifiederrors.Get().DatabaseError(l.component, operation, err)
}

// NetworkError logs a network error
func (l *Logger) NetworkError(operation string, err error) {
	if Enabled(LevelError) {
		log.Printf("[ERROR] %s.%s: Network error: %v", l.component, operation, err)
	}
	unifiederrors.Get().NetworkError(l.component, operation, err)
}
