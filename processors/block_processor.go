package processors

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cellar/chain"
	"cellar/codec"
	"cellar/database"
	unifiederrors "cellar/errors"
	"cellar/logger"
	"cellar/models"
)

// Batch sizes for bulk inserts, sized to stay under every dialect's bind parameter limit
const (
	HEADER_BATCH_SIZE      = 500
	TRANSACTION_BATCH_SIZE = 1000
	CELL_BATCH_SIZE        = 1000
	DEP_BATCH_SIZE         = 2000
)

const scriptCacheSize = 16384

// BlockProcessor writes blocks into the relational projection and takes them out again
type BlockProcessor struct {
	db          *gorm.DB
	scriptCache *lru.Cache[string, codec.Hash]
	log         *logger.Logger
}

// NewBlockProcessor creates a new block processor
func NewBlockProcessor(db *gorm.DB) *BlockProcessor {
	cache, err := lru.New[string, codec.Hash](scriptCacheSize)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &BlockProcessor{
		db:          db,
		scriptCache: cache,
		log:         logger.New("BlockProcessor"),
	}
}

// GetDB returns the underlying connection
func (bp *BlockProcessor) GetDB() *gorm.DB {
	return bp.db
}

// Initialize creates any missing table and returns the stored tip. ok is false for an empty store.
func (bp *BlockProcessor) Initialize(ctx context.Context) (uint64, bool, error) {
	if err := database.CreateSchema(bp.db.WithContext(ctx)); err != nil {
		return 0, false, fmt.Errorf("create schema: %w", err)
	}
	return bp.TipHeight(ctx)
}

// TipHeight returns the highest stored block number
func (bp *BlockProcessor) TipHeight(ctx context.Context) (uint64, bool, error) {
	return database.GetTipHeight(ctx, bp.db)
}

// VerifyParent reports whether block extends the stored chain
func (bp *BlockProcessor) VerifyParent(ctx context.Context, block *chain.Block) (bool, error) {
	ok, _, err := bp.verifyParent(bp.db.WithContext(ctx), block)
	return ok, err
}

// verifyParent also returns the parent hash a matching block would need:
// the stored one when a block sits one height below, the declared one otherwise.
func (bp *BlockProcessor) verifyParent(tx *gorm.DB, block *chain.Block) (bool, codec.Hash, error) {
	if block.Number() == 0 {
		return true, block.ParentHash(), nil
	}

	var parent models.BlockHeader
	err := tx.Select("hash").Where("number = ?", int64(block.Number()-1)).Take(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, block.ParentHash(), nil
	}
	if err != nil {
		return false, codec.Hash{}, fmt.Errorf("select block_headers: %w", err)
	}

	stored, err := decodeHash("block_headers", "hash", parent.Hash)
	if err != nil {
		return false, codec.Hash{}, err
	}
	return stored == block.ParentHash(), stored, nil
}

// InsertBlock stores block and everything it carries in one transaction. A
// block that does not extend the stored tip fails with *errors.ForkDetectedError.
func (bp *BlockProcessor) InsertBlock(ctx context.Context, block *chain.Block) error {
	startTime := time.Now()
	rows := bp.collectRows(block)

	err := database.RetryTransaction(ctx, bp.db, func(tx *gorm.DB) error {
		ok, expected, err := bp.verifyParent(tx, block)
		if err != nil {
			return err
		}
		if !ok {
			return &unifiederrors.ForkDetectedError{
				ParentHeight: block.Number() - 1,
				ParentHash:   expected,
			}
		}
		return rows.write(tx, bp.log)
	})
	if err != nil {
		return err
	}

	bp.log.Debug("InsertBlock", "block %d (%s) stored with %d transactions and %d cells in %v",
		block.Number(), block.Hash(), len(rows.transactions), len(rows.cells), time.Since(startTime))
	return nil
}

// RemoveBlock deletes the block stored at height, restoring every cell its
// transactions consumed. It is a no-op when no block is stored there.
func (bp *BlockProcessor) RemoveBlock(ctx context.Context, height uint64) error {
	return database.RetryTransaction(ctx, bp.db, func(tx *gorm.DB) error {
		var header models.BlockHeader
		err := tx.Select("hash").Where("number = ?", int64(height)).Take(&header).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bp.log.Debug("RemoveBlock", "no block stored at height %d", height)
			return nil
		}
		if err != nil {
			return fmt.Errorf("select block_headers: %w", err)
		}
		blockHash, err := decodeHash("block_headers", "hash", header.Hash)
		if err != nil {
			return err
		}

		if err := bp.removeTransactions(tx, blockHash); err != nil {
			return err
		}

		res := tx.Exec(`DELETE FROM block_proposals WHERE block_hash = ?
			AND NOT EXISTS (SELECT 1 FROM block_uncles WHERE block_uncles.uncle_hash = block_proposals.block_hash)`,
			blockHash.Bytes())
		if res.Error != nil {
			return fmt.Errorf("delete block_proposals: %w", res.Error)
		}
		bp.log.Trace("RemoveBlock", "block_proposals: %d rows", res.RowsAffected)

		if err := bp.removeUncles(tx, blockHash); err != nil {
			return err
		}

		if err := tx.Where("hash = ?", blockHash.Bytes()).Delete(&models.BlockHeader{}).Error; err != nil {
			return fmt.Errorf("delete block_headers: %w", err)
		}
		bp.log.Debug("RemoveBlock", "block %d (%s) removed", height, blockHash)
		return nil
	})
}

// Destroy drops every table
func (bp *BlockProcessor) Destroy(ctx context.Context) error {
	bp.scriptCache.Purge()
	return database.DropSchema(bp.db.WithContext(ctx))
}

func (bp *BlockProcessor) removeTransactions(tx *gorm.DB, blockHash codec.Hash) error {
	var links []models.BlockTransaction
	if err := tx.Where("block_hash = ?", blockHash.Bytes()).Find(&links).Error; err != nil {
		return fmt.Errorf("select block_transactions: %w", err)
	}
	sortByIndexDesc(links, func(l models.BlockTransaction) int32 { return l.Index })

	if len(links) > 0 {
		if err := tx.Where("block_hash = ?", blockHash.Bytes()).Delete(&models.BlockTransaction{}).Error; err != nil {
			return fmt.Errorf("delete block_transactions: %w", err)
		}
	}

	for _, link := range links {
		txHash, err := decodeHash("block_transactions", "tx_hash", link.TxHash)
		if err != nil {
			return err
		}
		if err := bp.removeTransaction(tx, txHash, link.Index); err != nil {
			return err
		}
	}
	return nil
}

// removeTransaction undoes one occurrence of a transaction. Rows shared with a
// remaining occurrence of the same hash in another block stay.
func (bp *BlockProcessor) removeTransaction(tx *gorm.DB, txHash codec.Hash, refIndex int32) error {
	var sameOccurrence int64
	err := tx.Model(&models.BlockTransaction{}).
		Where(matchOutPoint("tx_hash", txHash.Bytes(), "index", refIndex)).
		Count(&sameOccurrence).Error
	if err != nil {
		return fmt.Errorf("count block_transactions: %w", err)
	}
	if sameOccurrence == 0 {
		scope := matchOutPoint("ref_tx_hash", txHash.Bytes(), "ref_index", refIndex)
		for _, dep := range []struct {
			table string
			model interface{}
		}{
			{"tx_cell_deps", &models.TxCellDep{}},
			{"tx_header_deps", &models.TxHeaderDep{}},
			{"tx_witnesses", &models.TxWitness{}},
		} {
			if err := tx.Where(scope).Delete(dep.model).Error; err != nil {
				return fmt.Errorf("delete %s: %w", dep.table, err)
			}
		}
	}

	var remaining int64
	if err := tx.Model(&models.BlockTransaction{}).Where("tx_hash = ?", txHash.Bytes()).Count(&remaining).Error; err != nil {
		return fmt.Errorf("count block_transactions: %w", err)
	}
	if remaining > 0 {
		bp.log.Trace("RemoveBlock", "transaction %s still linked from %d blocks", txHash, remaining)
		return nil
	}

	if err := tx.Where("hash = ?", txHash.Bytes()).Delete(&models.Transaction{}).Error; err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}

	res := tx.Model(&models.Cell{}).
		Where("consumed_tx_hash = ?", txHash.Bytes()).
		Updates(map[string]interface{}{
			"consumed_tx_hash": nil,
			"consumed_index":   nil,
			"consumed_since":   nil,
		})
	if res.Error != nil {
		return fmt.Errorf("restore cells: %w", res.Error)
	}
	bp.log.Trace("RemoveBlock", "restored %d cells consumed by %s", res.RowsAffected, txHash)

	var cells []models.Cell
	err = tx.Select("tx_hash", "index", "lock_hash", "type_hash", "data_hash").
		Where("tx_hash = ?", txHash.Bytes()).Find(&cells).Error
	if err != nil {
		return fmt.Errorf("select cells: %w", err)
	}

	for _, cell := range cells {
		if err := bp.removeCell(tx, cell); err != nil {
			return err
		}
	}
	return nil
}

// removeCell deletes one cell, then its data blob and scripts if nothing else references them
func (bp *BlockProcessor) removeCell(tx *gorm.DB, cell models.Cell) error {
	dataHash, err := decodeHash("cells", "data_hash", cell.DataHash)
	if err != nil {
		return err
	}
	lockHash, err := decodeHash("cells", "lock_hash", cell.LockHash)
	if err != nil {
		return err
	}
	scriptHashes := []codec.Hash{lockHash}
	if cell.TypeHash != nil {
		typeHash, err := decodeHash("cells", "type_hash", cell.TypeHash)
		if err != nil {
			return err
		}
		if typeHash != lockHash {
			scriptHashes = append(scriptHashes, typeHash)
		}
	}

	err = tx.Where(matchOutPoint("tx_hash", cell.TxHash, "index", cell.Index)).Delete(&models.Cell{}).Error
	if err != nil {
		return fmt.Errorf("delete cells: %w", err)
	}

	if err := deleteOrphanedData(tx, dataHash); err != nil {
		return err
	}
	for _, h := range scriptHashes {
		if err := deleteOrphanedScript(tx, h); err != nil {
			return err
		}
	}
	return nil
}

func deleteOrphanedData(tx *gorm.DB, hash codec.Hash) error {
	err := tx.Exec(`DELETE FROM cells_data WHERE hash = ?
		AND NOT EXISTS (SELECT 1 FROM cells WHERE cells.data_hash = cells_data.hash)`, hash.Bytes()).Error
	if err != nil {
		return fmt.Errorf("delete cells_data: %w", err)
	}
	return nil
}

func deleteOrphanedScript(tx *gorm.DB, hash codec.Hash) error {
	err := tx.Exec(`DELETE FROM scripts WHERE hash = ?
		AND NOT EXISTS (SELECT 1 FROM cells WHERE cells.lock_hash = scripts.hash)
		AND NOT EXISTS (SELECT 1 FROM cells WHERE cells.type_hash = scripts.hash)`, hash.Bytes()).Error
	if err != nil {
		return fmt.Errorf("delete scripts: %w", err)
	}
	return nil
}

func (bp *BlockProcessor) removeUncles(tx *gorm.DB, blockHash codec.Hash) error {
	var links []models.BlockUncle
	if err := tx.Where("block_hash = ?", blockHash.Bytes()).Find(&links).Error; err != nil {
		return fmt.Errorf("select block_uncles: %w", err)
	}
	if len(links) == 0 {
		return nil
	}
	sortByIndexDesc(links, func(l models.BlockUncle) int32 { return l.Index })

	if err := tx.Where("block_hash = ?", blockHash.Bytes()).Delete(&models.BlockUncle{}).Error; err != nil {
		return fmt.Errorf("delete block_uncles: %w", err)
	}

	for _, link := range links {
		uncleHash, err := decodeHash("block_uncles", "uncle_hash", link.UncleHash)
		if err != nil {
			return err
		}
		err = tx.Exec(`DELETE FROM uncle_headers WHERE hash = ?
			AND NOT EXISTS (SELECT 1 FROM block_uncles WHERE block_uncles.uncle_hash = uncle_headers.hash)`,
			uncleHash.Bytes()).Error
		if err != nil {
			return fmt.Errorf("delete uncle_headers: %w", err)
		}
		err = tx.Exec(`DELETE FROM block_proposals WHERE block_hash = ?
			AND NOT EXISTS (SELECT 1 FROM block_headers WHERE block_headers.hash = block_proposals.block_hash)
			AND NOT EXISTS (SELECT 1 FROM block_uncles WHERE block_uncles.uncle_hash = block_proposals.block_hash)`,
			uncleHash.Bytes()).Error
		if err != nil {
			return fmt.Errorf("delete block_proposals: %w", err)
		}
	}
	return nil
}

// scriptHash memoizes ScriptHash by the serialized script
func (bp *BlockProcessor) scriptHash(s codec.Script) (codec.Hash, []byte) {
	serialized := codec.SerializeScript(s)
	key := string(serialized)
	if h, ok := bp.scriptCache.Get(key); ok {
		return h, serialized
	}
	h := codec.CKBHash(serialized)
	bp.scriptCache.Add(key, h)
	return h, serialized
}

// decodeHash turns a stored hash column back into a Hash
func decodeHash(table, column string, b []byte) (codec.Hash, error) {
	h, err := codec.HashFromBytes(b)
	if err != nil {
		var integrity *unifiederrors.DataIntegrityError
		if errors.As(err, &integrity) {
			integrity.Table = table
			integrity.Column = column
		}
		return h, err
	}
	return h, nil
}

// insertIgnore inserts rows, skipping any whose key is already stored
func insertIgnore[T any](tx *gorm.DB, table string, rows []T, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// matchOutPoint selects rows by a hash and index column pair. A []byte inside a
// map condition expands into IN (...), so each value is bound through clause.Eq.
func matchOutPoint(hashColumn string, hash []byte, indexColumn string, index int32) clause.Expression {
	return clause.And(
		clause.Eq{Column: clause.Column{Name: hashColumn}, Value: hash},
		clause.Eq{Column: clause.Column{Name: indexColumn}, Value: index},
	)
}
