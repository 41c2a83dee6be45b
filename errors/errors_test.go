package errors

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkDetectedUnwrapsThroughWrapping(t *testing.T) {
	var hash [32]byte
	hash[0], hash[31] = 0xab, 0x01
	wrapped := fmt.Errorf("insert block 8: %w", &ForkDetectedError{ParentHeight: 7, ParentHash: hash})

	fork, ok := IsForkDetected(wrapped)
	require.True(t, ok)
	assert.Equal(t, uint64(7), fork.ParentHeight)
	assert.Equal(t, hash, fork.ParentHash)
	assert.Contains(t, wrapped.Error(), "unknown parent block (7, 0xab")

	_, ok = IsForkDetected(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestTaxonomyHelpers(t *testing.T) {
	transport := fmt.Errorf("tip: %w", &TransportError{Call: "get_tip_block_number", Err: fmt.Errorf("connection refused")})
	integrity := fmt.Errorf("remove cells: %w", &DataIntegrityError{Table: "cells", Column: "data_hash", Detail: "expected 32 bytes, got 3"})

	assert.True(t, IsTransport(transport))
	assert.False(t, IsDataIntegrity(transport))
	assert.True(t, IsDataIntegrity(integrity))
	assert.False(t, IsTransport(integrity))
	assert.Equal(t, "data integrity: cells.data_hash: expected 32 bytes, got 3", (&DataIntegrityError{Table: "cells", Column: "data_hash", Detail: "expected 32 bytes, got 3"}).Error())
	assert.Equal(t, "invalid configuration: rpc.url is required", (&ConfigError{Field: "rpc.url", Reason: "is required"}).Error())
}

func TestUnifiedErrorSystemDeduplicates(t *testing.T) {
	ues := newUnifiedErrorSystem(Options{})

	ues.LogError(ErrorTypeDatabase, "Processor", "InsertBlock", "insert cells: disk full")
	ues.LogError(ErrorTypeDatabase, "Processor", "InsertBlock", "insert cells: disk full")
	ues.Warning("Syncer", "Rollback", "rollback unknown parent block")

	stats := ues.GetStatistics()
	assert.Equal(t, int64(3), stats["total_errors"])
	assert.Equal(t, 2, stats["unique_errors"])
	assert.Equal(t, int64(2), ues.Count(ErrorTypeDatabase))

	recent := ues.GetRecentErrors(5)
	require.Len(t, recent, 2)
	assert.Equal(t, ErrorTypeWarning, recent[0].Type)
	assert.Equal(t, int64(2), recent[1].Count)
}

func TestClassify(t *testing.T) {
	ues := newUnifiedErrorSystem(Options{})

	ues.Classify("Syncer", "Step", &ForkDetectedError{ParentHeight: 1})
	ues.Classify("Syncer", "Step", &TransportError{Call: "get_block_by_number", Err: fmt.Errorf("timeout")})
	ues.Classify("Syncer", "Step", &DataIntegrityError{Column: "hash"})
	ues.Classify("Syncer", "Step", fmt.Errorf("anything else"))
	ues.Classify("Syncer", "Step", nil)

	assert.Equal(t, int64(1), ues.Count(ErrorTypeFork))
	assert.Equal(t, int64(1), ues.Count(ErrorTypeNetwork))
	assert.Equal(t, int64(1), ues.Count(ErrorTypeIntegrity))
	assert.Equal(t, int64(1), ues.Count(ErrorTypeProcessing))
}

func TestPersistenceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	ues := newUnifiedErrorSystem(Options{PersistencePath: path})

	ues.SlowQuery("GORM.cells", "Select", 2*time.Second, "SELECT * FROM cells")
	require.NoError(t, ues.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Slow Query | GORM.cells.Select | Query took 2s | SELECT * FROM cells")
}

func TestGetFallsBackBeforeInitialize(t *testing.T) {
	assert.NotNil(t, Get())
}

func TestExtractTableName(t *testing.T) {
	assert.Equal(t, "cells", extractTableName(`DELETE FROM "cells" WHERE tx_hash = $1`))
	assert.Equal(t, "block_headers", extractTableName("INSERT INTO `block_headers` (`hash`) VALUES (?)"))
	assert.Equal(t, "Delete", statementKind(" delete from cells"))
	assert.Equal(t, "Query", statementKind("PRAGMA foreign_keys"))
}
