package database

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	unifiederrors "cellar/errors"
)

// MySQLErrorLogger routes MySQL driver log lines to the unified error system
type MySQLErrorLogger struct {
	mu sync.Mutex
}

// Print implements the mysql.Logger interface
func (mel *MySQLErrorLogger) Print(v ...interface{}) {
	mel.mu.Lock()
	defer mel.mu.Unlock()

	var msg string
	if len(v) > 0 {
		format, ok := v[0].(string)
		if ok && len(v) > 1 && strings.Contains(format, "%") {
			msg = fmt.Sprintf(format, v[1:]...)
		} else {
			parts := make([]string, len(v))
			for i, arg := range v {
				parts[i] = fmt.Sprint(arg)
			}
			msg = strings.Join(parts, " ")
		}
	}

	errorType, component, operation := classifyMySQLLog(msg)
	unifiederrors.Get().LogError(errorType, component, operation, cleanupMySQLMessage(msg))
}

// classifyMySQLLog picks the error type and component for a driver log line
func classifyMySQLLog(msg string) (unifiederrors.ErrorType, string, string) {
	msgLower := strings.ToLower(msg)

	switch {
	case strings.Contains(msgLower, "packets.go"):
		return unifiederrors.ErrorTypeNetwork, "MySQL.Packets", "PacketError"
	case strings.Contains(msgLower, "connection"):
		return unifiederrors.ErrorTypeNetwork, "MySQL.Connection", "ConnectionError"
	case strings.Contains(msgLower, "timeout"):
		return unifiederrors.ErrorTypeNetwork, "MySQL.Network", "Timeout"
	case strings.Contains(msgLower, "deadlock"):
		return unifiederrors.ErrorTypeDatabase, "MySQL.Transaction", "Deadlock"
	case strings.Contains(msgLower, "syntax"):
		return unifiederrors.ErrorTypeDatabase, "MySQL.Query", "SyntaxError"
	}
	return unifiederrors.ErrorTypeDatabase, "MySQL.Driver", "Unknown"
}

// cleanupMySQLMessage strips the file:line prefix and driver tags
func cleanupMySQLMessage(msg string) string {
	if idx := strings.Index(msg, ".go:"); idx != -1 {
		end := idx + len(".go:")
		for end < len(msg) && msg[end] >= '0' && msg[end] <= '9' {
			end++
		}
		if end < len(msg) && msg[end] == ':' {
			end++
		}
		start := strings.LastIndex(msg[:idx], " ") + 1
		msg = msg[:start] + msg[end:]
	}

	msg = strings.TrimSpace(msg)
	msg = strings.TrimPrefix(msg, "[mysql] ")
	msg = strings.TrimPrefix(msg, "mysql: ")

	return strings.TrimSpace(msg)
}

var configureMySQLOnce sync.Once

// ConfigureMySQLDriver installs the driver logger and a dialer that reports failures
func ConfigureMySQLDriver() {
	configureMySQLOnce.Do(func() {
		mysql.SetLogger(&MySQLErrorLogger{})

		mysql.RegisterDial("tcp", func(addr string) (net.Conn, error) {
			conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
			if err != nil {
				unifiederrors.Get().NetworkError("MySQL.Driver", "Dial", err)
				return nil, err
			}
			return conn, nil
		})
	})
}
