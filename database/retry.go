package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultRetryConfig provides sensible defaults
var DefaultRetryConfig = RetryConfig{
	MaxRetries:   3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Factor:       2.0,
}

var retryablePatterns = []string{
	// connection errors
	"bad connection",
	"invalid connection",
	"broken pipe",
	"connection reset",
	"connection refused",
	"connection closed",
	"timeout",
	"deadlock",
	"commands out of sync",

	// MySQL
	"Error 1213", // Deadlock
	"Error 1205", // Lock wait timeout
	"Error 2013", // Lost connection
	"Error 2006", // Server has gone away

	// Postgres SQLSTATE
	"SQLSTATE 40001", // serialization_failure
	"SQLSTATE 40P01", // deadlock_detected
	"SQLSTATE 57P01", // admin_shutdown
	"SQLSTATE 08006", // connection_failure
	"SQLSTATE 08003", // connection_does_not_exist
	"conn closed",

	// SQLite
	"database is locked",
	"SQLITE_BUSY",
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// RetryTransaction executes a function within a transaction with retry logic.
// Each attempt is a fresh transaction, so fn must not keep state between calls.
func RetryTransaction(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	return retry(ctx, DefaultRetryConfig, "transaction", func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
}

// RetryOperation executes a function with retry logic (no transaction)
func RetryOperation(ctx context.Context, fn func() error) error {
	return retry(ctx, DefaultRetryConfig, "operation", fn)
}

func retry(ctx context.Context, config RetryConfig, kind string, fn func() error) error {
	delay := config.InitialDelay
	var err error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err = fn()

		if err == nil {
			return nil
		}

		if !IsRetryableError(err) {
			return err
		}

		if attempt < config.MaxRetries {
			log.Printf("[RETRY] Attempt %d/%d failed: %v. Retrying in %v...",
				attempt+1, config.MaxRetries, err, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s interrupted: %w", kind, err)
			case <-time.After(delay):
			}

			// Exponential backoff
			delay = time.Duration(float64(delay) * config.Factor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}

	return fmt.Errorf("%s failed after %d retries: %w", kind, config.MaxRetries, err)
}
