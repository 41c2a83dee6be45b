package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "broken pipe",
			err:      errors.New("write: broken pipe"),
			expected: true,
		},
		{
			name:     "connection reset",
			err:      errors.New("read: connection reset by peer"),
			expected: true,
		},
		{
			name:     "mysql deadlock",
			err:      errors.New("Error 1213: Deadlock found"),
			expected: true,
		},
		{
			name:     "lock wait timeout",
			err:      errors.New("Error 1205: Lock wait timeout exceeded"),
			expected: true,
		},
		{
			name:     "postgres serialization failure",
			err:      errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)"),
			expected: true,
		},
		{
			name:     "sqlite busy",
			err:      errors.New("database is locked"),
			expected: true,
		},
		{
			name:     "wrapped retryable",
			err:      errors.New("insert cells: read: connection reset by peer"),
			expected: true,
		},
		{
			name:     "postgres unique violation",
			err:      errors.New("duplicate key value violates unique constraint (SQLSTATE 23505)"),
			expected: false,
		},
		{
			name:     "non-retryable error",
			err:      errors.New("syntax error"),
			expected: false,
		},
		{
			name:     "permission denied",
			err:      errors.New("permission denied"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestRetryOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("successful operation", func(t *testing.T) {
		callCount := 0
		err := RetryOperation(ctx, func() error {
			callCount++
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if callCount != 1 {
			t.Errorf("Expected 1 call, got %d", callCount)
		}
	})

	t.Run("retryable error then success", func(t *testing.T) {
		callCount := 0
		err := RetryOperation(ctx, func() error {
			callCount++
			if callCount < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if callCount != 3 {
			t.Errorf("Expected 3 calls, got %d", callCount)
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		callCount := 0
		expectedErr := errors.New("syntax error")
		err := RetryOperation(ctx, func() error {
			callCount++
			return expectedErr
		})

		if err != expectedErr {
			t.Errorf("Expected %v, got %v", expectedErr, err)
		}
		if callCount != 1 {
			t.Errorf("Expected 1 call, got %d", callCount)
		}
	})

	t.Run("max retries exceeded keeps last error", func(t *testing.T) {
		callCount := 0
		lastErr := errors.New("connection reset by peer")
		err := RetryOperation(ctx, func() error {
			callCount++
			return lastErr
		})

		if !errors.Is(err, lastErr) {
			t.Errorf("Expected wrapped %v, got %v", lastErr, err)
		}
		if callCount != 4 { // 1 initial + 3 retries
			t.Errorf("Expected 4 calls, got %d", callCount)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		callCount := 0
		err := RetryOperation(cancelled, func() error {
			callCount++
			return errors.New("connection refused")
		})

		if err == nil {
			t.Error("Expected error from cancelled retry")
		}
		if callCount != 1 {
			t.Errorf("Expected 1 call, got %d", callCount)
		}
	})
}

func TestRetryTransaction(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	attempts := 0
	err := RetryTransaction(ctx, db, func(tx *gorm.DB) error {
		attempts++
		if err := tx.Exec("CREATE TABLE IF NOT EXISTS retry_marker (id INTEGER)").Error; err != nil {
			return err
		}
		if attempts == 1 {
			return errors.New("database is locked")
		}
		return tx.Exec("INSERT INTO retry_marker (id) VALUES (1)").Error
	})
	if err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}

	var count int64
	if err := db.Table("retry_marker").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 committed row, got %d", count)
	}
}

func TestExponentialBackoff(t *testing.T) {
	var attempts []time.Time
	err := RetryOperation(context.Background(), func() error {
		attempts = append(attempts, time.Now())
		if len(attempts) < 4 { // Force 3 retries
			return errors.New("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected operation to eventually succeed, got: %v", err)
	}

	if len(attempts) != 4 {
		t.Fatalf("Expected 4 attempts (1 initial + 3 retries), got %d", len(attempts))
	}

	// First retry should be ~100ms, second ~200ms, third ~400ms
	expectedDelays := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}

	for i := 1; i < len(attempts); i++ {
		actualDelay := attempts[i].Sub(attempts[i-1])
		if actualDelay < expectedDelays[i-1] {
			t.Errorf("Retry %d: expected delay >= %v, got %v", i, expectedDelays[i-1], actualDelay)
		}
	}
}

func BenchmarkRetryOperation_Success(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RetryOperation(context.Background(), func() error {
			return nil
		})
	}
}
