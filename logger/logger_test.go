package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	unifiederrors "cellar/errors"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel(" WARN ")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, level)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestLevelFilter(t *testing.T) {
	buf := captureLog(t)
	l := New("Syncer")

	SetLevel(LevelInfo)
	l.Trace("insert", "row %d", 1)
	l.Debug("insert", "row %d", 2)
	l.Info("sync", "block %d", 3)
	assert.Equal(t, "[INFO] Syncer.sync: block 3\n", buf.String())

	buf.Reset()
	SetLevel(LevelTrace)
	l.Trace("insert", "row %d", 1)
	assert.Equal(t, "[TRACE] Syncer.insert: row 1\n", buf.String())
}

func TestWarningIsCountedWhenSuppressed(t *testing.T) {
	buf := captureLog(t)
	SetLevel(LevelError)
	l := New("Syncer")

	before := unifiederrors.Get().Count(unifiederrors.ErrorTypeWarning)
	l.Warning("rollback", "rollback unknown parent block (%d)", 7)

	assert.Empty(t, buf.String())
	assert.Equal(t, before+1, unifiederrors.Get().Count(unifiederrors.ErrorTypeWarning))
}
