package processors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cellar/chain"
	"cellar/codec"
	"cellar/config"
	"cellar/database"
	"cellar/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return db
}

func setupProcessor(t *testing.T) (*BlockProcessor, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	bp := NewBlockProcessor(db)
	_, _, err := bp.Initialize(context.Background())
	require.NoError(t, err)
	return bp, db
}

func testHash(format string, args ...interface{}) codec.Hash {
	return codec.CKBHash([]byte(fmt.Sprintf(format, args...)))
}

var secp256k1CodeHash = testHash("secp256k1_blake160_sighash_all")

func lockScript(owner string) codec.Script {
	return codec.Script{
		CodeHash: secp256k1CodeHash,
		HashType: codec.HashTypeType,
		Args:     []byte(owner),
	}
}

func cellbase(number uint64, owner string) chain.Transaction {
	return chain.Transaction{
		Hash:    testHash("cellbase-%d-%s", number, owner),
		Version: 0,
		Inputs: []chain.CellInput{{
			PreviousOutput: chain.OutPoint{TxHash: codec.ZeroHash, Index: 0xffffffff},
			Since:          number,
		}},
		Outputs:     []chain.CellOutput{{Capacity: 100_000_000_000, Lock: lockScript(owner)}},
		OutputsData: [][]byte{{}},
		Witnesses:   [][]byte{[]byte("cellbase witness")},
	}
}

// transfer spends the given cells into one output per data entry
func transfer(tag string, spends []chain.OutPoint, data ...[]byte) chain.Transaction {
	tx := chain.Transaction{
		Hash:    testHash("tx-%s", tag),
		Version: 0,
		CellDeps: []chain.CellDep{{
			OutPoint: chain.OutPoint{TxHash: testHash("dep-group"), Index: 0},
			DepType:  codec.DepTypeDepGroup,
		}},
		HeaderDeps: []codec.Hash{testHash("header-dep")},
	}
	for i, op := range spends {
		tx.Inputs = append(tx.Inputs, chain.CellInput{PreviousOutput: op, Since: uint64(i + 1)})
		tx.Witnesses = append(tx.Witnesses, []byte(fmt.Sprintf("sig-%s-%d", tag, i)))
	}
	for _, d := range data {
		tx.Outputs = append(tx.Outputs, chain.CellOutput{Capacity: 6_100_000_000, Lock: lockScript(tag)})
		tx.OutputsData = append(tx.OutputsData, d)
	}
	return tx
}

func testBlock(number uint64, parent codec.Hash, tag string, txs ...chain.Transaction) *chain.Block {
	all := append([]chain.Transaction{cellbase(number, tag)}, txs...)
	return &chain.Block{
		Header: chain.Header{
			Hash:          testHash("block-%d-%s", number, tag),
			Number:        number,
			ParentHash:    parent,
			CompactTarget: 0x1d08a1a1,
			Timestamp:     1_700_000_000_000 + number*8000,
			Epoch:         codec.Epoch{Number: 1, Index: number, Length: 1800},
			Dao:           codec.Dao{C: 10, AR: 10_000_000_000_000_000, S: 7, U: 3},
			Nonce:         [codec.NonceLength]byte{1, 2, 3},
		},
		Transactions: all,
		Proposals:    []codec.ShortID{{0xaa, byte(number)}},
	}
}

func testUncle(tag string, number uint64) chain.UncleBlock {
	return chain.UncleBlock{
		Header: chain.Header{
			Hash:       testHash("uncle-%s", tag),
			Number:     number,
			ParentHash: testHash("uncle-parent-%s", tag),
		},
		Proposals: []codec.ShortID{{0xbb, 1}, {0xbb, 2}},
	}
}

func tableCounts(t *testing.T, db *gorm.DB) map[string]int64 {
	t.Helper()
	counts := make(map[string]int64)
	for _, table := range models.TableNames() {
		var n int64
		require.NoError(t, db.Table(table).Count(&n).Error)
		counts[table] = n
	}
	return counts
}

func loadCell(t *testing.T, db *gorm.DB, op chain.OutPoint) models.Cell {
	t.Helper()
	var cell models.Cell
	err := db.Where(matchOutPoint("tx_hash", op.TxHash.Bytes(), "index", int32(op.Index))).Take(&cell).Error
	require.NoError(t, err)
	return cell
}
