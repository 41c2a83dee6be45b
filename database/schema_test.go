package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cellar/config"
	"cellar/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "not supported")
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, HasSchema(db))

	require.NoError(t, CreateSchema(db))
	require.NoError(t, CreateSchema(db))
	assert.True(t, HasSchema(db))

	for _, table := range models.TableNames() {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasColumn(&models.Cell{}, "consumed_since"))
	assert.True(t, db.Migrator().HasColumn(&models.BlockHeader{}, "dao_ar"))
	assert.True(t, db.Migrator().HasColumn(&models.BlockProposal{}, "index"))
	assert.True(t, db.Migrator().HasIndex(&models.Cell{}, "idx_cells_consumed_tx_hash"))
}

func TestCreateSchemaFillsMissingTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrator().CreateTable(&models.BlockHeader{}))

	require.NoError(t, CreateSchema(db))
	assert.True(t, db.Migrator().HasTable(&models.Script{}))
}

func TestDropSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, CreateSchema(db))

	require.NoError(t, DropSchema(db))
	for _, table := range models.TableNames() {
		assert.False(t, db.Migrator().HasTable(table), table)
	}
	// dropping an absent schema is not an error
	require.NoError(t, DropSchema(db))
}
