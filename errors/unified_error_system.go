package errors

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorType represents the type of error for categorization
type ErrorType string

const (
	ErrorTypeDatabase   ErrorType = "Database"
	ErrorTypeNetwork    ErrorType = "Network"
	ErrorTypeProcessing ErrorType = "Processing"
	ErrorTypeIntegrity  ErrorType = "Integrity"
	ErrorTypeFork       ErrorType = "Fork"
	ErrorTypeSlow       ErrorType = "Slow Query"
	ErrorTypeWarning    ErrorType = "Warning"
	ErrorTypeSystem     ErrorType = "System"
)

var allErrorTypes = []ErrorType{
	ErrorTypeDatabase, ErrorTypeNetwork, ErrorTypeProcessing, ErrorTypeIntegrity,
	ErrorTypeFork, ErrorTypeSlow, ErrorTypeWarning, ErrorTypeSystem,
}

// UnifiedError represents a single deduplicated error with its context
type UnifiedError struct {
	Type      ErrorType `json:"type"`
	Component string    `json:"component"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// UnifiedErrorSystem is the single place where warnings and errors are counted
type UnifiedErrorSystem struct {
	errors    map[string]*UnifiedError // keyed by signature
	errorList []*UnifiedError
	mutex     sync.RWMutex

	totalErrors  atomic.Int64
	errorsByType map[ErrorType]*atomic.Int64

	logFile     *os.File
	maxErrors   int
	maxListSize int
}

// Options configures the global error system
type Options struct {
	// PersistencePath is an append-only log of every recorded error. Empty disables it.
	PersistencePath string
	MaxErrors       int
	MaxListSize     int
}

var (
	globalUnifiedSystem atomic.Pointer[UnifiedErrorSystem]
	fallbackSystem      = newUnifiedErrorSystem(Options{})
)

func newUnifiedErrorSystem(opts Options) *UnifiedErrorSystem {
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 10000
	}
	if opts.MaxListSize <= 0 {
		opts.MaxListSize = 1000
	}
	ues := &UnifiedErrorSystem{
		errors:       make(map[string]*UnifiedError),
		errorList:    make([]*UnifiedError, 0, 64),
		errorsByType: make(map[ErrorType]*atomic.Int64),
		maxErrors:    opts.MaxErrors,
		maxListSize:  opts.MaxListSize,
	}
	for _, errType := range allErrorTypes {
		ues.errorsByType[errType] = &atomic.Int64{}
	}
	if opts.PersistencePath != "" {
		f, err := os.OpenFile(opts.PersistencePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("[WARNING] Failed to open error log %s: %v", opts.PersistencePath, err)
		} else {
			ues.logFile = f
		}
	}
	return ues
}

// Initialize replaces the global error system
func Initialize(opts Options) *UnifiedErrorSystem {
	ues := newUnifiedErrorSystem(opts)
	if old := globalUnifiedSystem.Swap(ues); old != nil {
		old.Close()
	}
	return ues
}

// Get returns the global error system. Before Initialize it returns an
// in-memory system without persistence.
func Get() *UnifiedErrorSystem {
	if ues := globalUnifiedSystem.Load(); ues != nil {
		return ues
	}
	return fallbackSystem
}

// LogError records an error, merging it with earlier errors of the same signature
func (ues *UnifiedErrorSystem) LogError(errType ErrorType, component, operation, message string, details ...string) {
	signature := fmt.Sprintf("%s:%s:%s:%s", errType, component, operation, message)
	detailStr := strings.Join(details, " ")

	ues.mutex.Lock()
	defer ues.mutex.Unlock()

	now := time.Now()
	if existing, ok := ues.errors[signature]; ok {
		existing.Count++
		existing.LastSeen = now
		if detailStr != "" {
			existing.Details = detailStr
		}
	} else {
		entry := &UnifiedError{
			Type:      errType,
			Component: component,
			Operation: operation,
			Message:   message,
			Details:   detailStr,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
		ues.errors[signature] = entry
		ues.errorList = append(ues.errorList, entry)
		if len(ues.errorList) > ues.maxListSize {
			ues.errorList = ues.errorList[1:]
		}
		if len(ues.errors) > ues.maxErrors {
			ues.cleanupOldErrors()
		}
	}

	ues.totalErrors.Add(1)
	if counter, ok := ues.errorsByType[errType]; ok {
		counter.Add(1)
	}
	ues.logToFile(now, errType, component, operation, message, detailStr)
}

func (ues *UnifiedErrorSystem) DatabaseError(component, operation string, err error) {
	ues.LogError(ErrorTypeDatabase, component, operation, err.Error())
}

func (ues *UnifiedErrorSystem) NetworkError(component, operation string, err error) {
	ues.LogError(ErrorTypeNetwork, component, operation, err.Error())
}

func (ues *UnifiedErrorSystem) ProcessingError(component, operation string, err error) {
	ues.LogError(ErrorTypeProcessing, component, operation, err.Error())
}

func (ues *UnifiedErrorSystem) SlowQuery(component, operation string, duration time.Duration, query string) {
	ues.LogError(ErrorTypeSlow, component, operation, fmt.Sprintf("Query took %v", duration), query)
}

func (ues *UnifiedErrorSystem) Warning(component, operation, message string) {
	ues.LogError(ErrorTypeWarning, component, operation, message)
}

// Classify maps an error onto the taxonomy so callers don't have to
func (ues *UnifiedErrorSystem) Classify(component, operation string, err error) {
	switch {
	case err == nil:
		return
	case IsDataIntegrity(err):
		ues.LogError(ErrorTypeIntegrity, component, operation, err.Error())
	case IsTransport(err):
		ues.LogError(ErrorTypeNetwork, component, operation, err.Error())
	default:
		if _, ok := IsForkDetected(err); ok {
			ues.LogError(ErrorTypeFork, component, operation, err.Error())
			return
		}
		ues.LogError(ErrorTypeProcessing, component, operation, err.Error())
	}
}

// GetRecentErrors returns errors seen in the last N minutes, newest first
func (ues *UnifiedErrorSystem) GetRecentErrors(minutes int) []UnifiedError {
	ues.mutex.RLock()
	defer ues.mutex.RUnlock()

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	recent := make([]UnifiedError, 0)
	for i := len(ues.errorList) - 1; i >= 0; i-- {
		if ues.errorList[i].LastSeen.After(cutoff) {
			recent = append(recent, *ues.errorList[i])
		}
	}
	return recent
}

// GetStatistics returns current error statistics
func (ues *UnifiedErrorSystem) GetStatistics() map[string]interface{} {
	ues.mutex.RLock()
	unique := len(ues.errors)
	ues.mutex.RUnlock()

	typeCounts := make(map[string]int64, len(ues.errorsByType))
	for errType, counter := range ues.errorsByType {
		typeCounts[string(errType)] = counter.Load()
	}
	return map[string]interface{}{
		"total_errors":  ues.totalErrors.Load(),
		"unique_errors": unique,
		"by_type":       typeCounts,
	}
}

// Count returns how many errors of a type were recorded
func (ues *UnifiedErrorSystem) Count(errType ErrorType) int64 {
	if counter, ok := ues.errorsByType[errType]; ok {
		return counter.Load()
	}
	return 0
}

// cleanupOldErrors drops the oldest 10% of signatures. Caller holds the lock.
func (ues *UnifiedErrorSystem) cleanupOldErrors() {
	toRemove := len(ues.errors) / 10
	if toRemove < 1 {
		toRemove = 1
	}
	for i := 0; i < toRemove; i++ {
		var oldestSig string
		var oldest time.Time
		for sig, entry := range ues.errors {
			if oldestSig == "" || entry.LastSeen.Before(oldest) {
				oldestSig, oldest = sig, entry.LastSeen
			}
		}
		delete(ues.errors, oldestSig)
	}
}

func (ues *UnifiedErrorSystem) logToFile(at time.Time, errType ErrorType, component, operation, message, details string) {
	if ues.logFile == nil {
		return
	}
	entry := fmt.Sprintf("[%s] %s | %s.%s | %s", at.Format("2006-01-02 15:04:05.000"), errType, component, operation, message)
	if details != "" {
		entry += " | " + details
	}
	ues.logFile.WriteString(entry + "\n")
}

// Close flushes and closes the persistence file
func (ues *UnifiedErrorSystem) Close() error {
	ues.mutex.Lock()
	defer ues.mutex.Unlock()
	if ues.logFile == nil {
		return nil
	}
	ues.logFile.Sync()
	err := ues.logFile.Close()
	ues.logFile = nil
	return err
}
