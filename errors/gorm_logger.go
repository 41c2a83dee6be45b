package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// UnifiedGormLogger implements GORM's logger interface and forwards to the unified error system
type UnifiedGormLogger struct {
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
	LogLevel             gormlogger.LogLevel
}

// NewGormLogger creates a GORM logger that records SQL failures and slow queries
func NewGormLogger(slowThreshold time.Duration) gormlogger.Interface {
	return &UnifiedGormLogger{
		SlowThreshold:        slowThreshold,
		IgnoreRecordNotFound: true,
		LogLevel:             gormlogger.Warn,
	}
}

// LogMode sets the log level
func (l *UnifiedGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *UnifiedGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		Get().LogError(ErrorTypeSystem, "GORM", "Info", fmt.Sprintf(msg, data...))
	}
}

func (l *UnifiedGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		Get().Warning("GORM", "Warning", fmt.Sprintf(msg, data...))
	}
}

func (l *UnifiedGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		Get().LogError(ErrorTypeDatabase, "GORM", "Error", fmt.Sprintf(msg, data...))
	}
}

// Trace records failed statements and slow queries, tagged with the table they touched
func (l *UnifiedGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, _ := fc()
	operation := statementKind(sql)
	component := "GORM"
	if table := extractTableName(sql); table != "" {
		component = fmt.Sprintf("GORM.%s", table)
	}

	switch {
	case err != nil && (!errors.Is(err, gorm.ErrRecordNotFound) || !l.IgnoreRecordNotFound):
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "connection") || strings.Contains(errStr, "can't connect") {
			Get().NetworkError(component, operation, err)
		} else {
			Get().LogError(ErrorTypeDatabase, component, operation, err.Error(), truncateSQL(sql))
		}
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		Get().SlowQuery(component, operation, elapsed, truncateSQL(sql))
	}
}

func statementKind(sql string) string {
	sqlLower := strings.ToLower(strings.TrimSpace(sql))
	for _, kind := range []string{"insert", "update", "delete", "select", "create", "drop"} {
		if strings.HasPrefix(sqlLower, kind) {
			return strings.ToUpper(kind[:1]) + kind[1:]
		}
	}
	return "Query"
}

// extractTableName attempts to extract the table name from SQL
func extractTableName(sql string) string {
	sqlLower := strings.ToLower(sql)
	patterns := []struct {
		prefix string
		suffix string
	}{
		{"from `", "`"},
		{"from \"", "\""},
		{"from ", " "},
		{"into `", "`"},
		{"into \"", "\""},
		{"into ", " "},
		{"update `", "`"},
		{"update \"", "\""},
		{"update ", " "},
		{"table `", "`"},
		{"table \"", "\""},
	}
	for _, p := range patterns {
		if idx := strings.Index(sqlLower, p.prefix); idx != -1 {
			start := idx + len(p.prefix)
			if end := strings.Index(sqlLower[start:], p.suffix); end != -1 {
				return sql[start : start+end]
			}
		}
	}
	return ""
}

func truncateSQL(sql string) string {
	const maxLength = 500
	if len(sql) <= maxLength {
		return sql
	}
	return sql[:maxLength] + "..."
}
