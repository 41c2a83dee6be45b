package processors

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"cellar/chain"
	"cellar/codec"
	"cellar/logger"
	"cellar/models"
)

// consumption marks one cell as spent by an input
type consumption struct {
	cell       chain.OutPoint
	consumer   codec.Hash
	inputIndex int32
	since      []byte
}

// blockRows is a block decomposed into table rows, built before the
// transaction opens so a retried attempt writes the same rows
type blockRows struct {
	header        models.BlockHeader
	uncleHeaders  []models.UncleHeader
	blockUncles   []models.BlockUncle
	proposals     []models.BlockProposal
	links         []models.BlockTransaction
	transactions  []models.Transaction
	cellDeps      []models.TxCellDep
	headerDeps    []models.TxHeaderDep
	witnesses     []models.TxWitness
	cellData      []models.CellData
	scripts       []models.Script
	cells         []models.Cell
	consumptions  []consumption
	seenData      map[codec.Hash]struct{}
	seenScripts   map[codec.Hash]struct{}
	seenProposals map[string]struct{}
}

func headerColumns(h chain.Header) models.HeaderColumns {
	return models.HeaderColumns{
		Version:          int32(h.Version),
		CompactTarget:    int64(h.CompactTarget),
		Timestamp:        int64(h.Timestamp),
		EpochNumber:      int32(h.Epoch.Number),
		EpochIndex:       int32(h.Epoch.Index),
		EpochLength:      int32(h.Epoch.Length),
		ParentHash:       h.ParentHash.Bytes(),
		TransactionsRoot: h.TransactionsRoot.Bytes(),
		ProposalsHash:    h.ProposalsHash.Bytes(),
		UnclesHash:       h.UnclesHash.Bytes(),
		DaoC:             int64(h.Dao.C),
		DaoAR:            int64(h.Dao.AR),
		DaoS:             int64(h.Dao.S),
		DaoU:             int64(h.Dao.U),
		Nonce:            append([]byte(nil), h.Nonce[:]...),
	}
}

// nonNil keeps empty byte columns from being written as NULL
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (bp *BlockProcessor) collectRows(block *chain.Block) *blockRows {
	rows := &blockRows{
		header: models.BlockHeader{
			Hash:          block.Hash().Bytes(),
			Number:        int64(block.Number()),
			HeaderColumns: headerColumns(block.Header),
		},
		seenData:      make(map[codec.Hash]struct{}),
		seenScripts:   make(map[codec.Hash]struct{}),
		seenProposals: make(map[string]struct{}),
	}

	for i, uncle := range block.Uncles {
		rows.uncleHeaders = append(rows.uncleHeaders, models.UncleHeader{
			Hash:          uncle.Header.Hash.Bytes(),
			Number:        int64(uncle.Header.Number),
			HeaderColumns: headerColumns(uncle.Header),
		})
		rows.blockUncles = append(rows.blockUncles, models.BlockUncle{
			BlockHash: block.Hash().Bytes(),
			UncleHash: uncle.Header.Hash.Bytes(),
			Index:     int32(i),
		})
		rows.addProposals(uncle.Header.Hash, uncle.Proposals)
	}
	rows.addProposals(block.Hash(), block.Proposals)

	for i := range block.Transactions {
		bp.collectTransaction(rows, block, i)
	}
	return rows
}

func (r *blockRows) addProposals(container codec.Hash, ids []codec.ShortID) {
	for i, id := range ids {
		key := string(container[:]) + string(id[:])
		if _, ok := r.seenProposals[key]; ok {
			continue
		}
		r.seenProposals[key] = struct{}{}
		r.proposals = append(r.proposals, models.BlockProposal{
			BlockHash: container.Bytes(),
			ShortID:   id.Bytes(),
			Index:     int32(i),
		})
	}
}

func (bp *BlockProcessor) collectTransaction(rows *blockRows, block *chain.Block, position int) {
	t := &block.Transactions[position]
	refIndex := int32(position)
	txHash := t.Hash.Bytes()

	rows.links = append(rows.links, models.BlockTransaction{
		BlockHash: block.Hash().Bytes(),
		TxHash:    txHash,
		Index:     refIndex,
	})
	rows.transactions = append(rows.transactions, models.Transaction{
		Hash:    txHash,
		Version: int32(t.Version),
	})

	for j, dep := range t.CellDeps {
		rows.cellDeps = append(rows.cellDeps, models.TxCellDep{
			RefTxHash:   txHash,
			RefIndex:    refIndex,
			RefDepIndex: int32(j),
			TxHash:      dep.OutPoint.TxHash.Bytes(),
			Index:       int32(dep.OutPoint.Index),
			DepType:     int16(dep.DepType),
		})
	}
	for j, dep := range t.HeaderDeps {
		rows.headerDeps = append(rows.headerDeps, models.TxHeaderDep{
			RefTxHash:   txHash,
			RefIndex:    refIndex,
			RefDepIndex: int32(j),
			BlockHash:   dep.Bytes(),
		})
	}
	for j, witness := range t.Witnesses {
		rows.witnesses = append(rows.witnesses, models.TxWitness{
			RefTxHash:   txHash,
			RefIndex:    refIndex,
			RefDepIndex: int32(j),
			Witness:     nonNil(witness),
		})
	}

	for j, output := range t.Outputs {
		data := t.OutputData(j)
		dataHash := codec.DataHash(data)
		if _, ok := rows.seenData[dataHash]; !ok {
			rows.seenData[dataHash] = struct{}{}
			rows.cellData = append(rows.cellData, models.CellData{Hash: dataHash.Bytes(), Data: nonNil(data)})
		}

		lockHash := bp.addScript(rows, output.Lock)
		cell := models.Cell{
			TxHash:   txHash,
			Index:    int32(j),
			Capacity: int64(output.Capacity),
			LockHash: lockHash.Bytes(),
			DataHash: dataHash.Bytes(),
		}
		if output.Type != nil {
			typeHash := bp.addScript(rows, *output.Type)
			cell.TypeHash = typeHash.Bytes()
		}
		rows.cells = append(rows.cells, cell)
	}

	// the cellbase has a single input that spends nothing
	if position == 0 {
		return
	}
	for j, input := range t.Inputs {
		rows.consumptions = append(rows.consumptions, consumption{
			cell:       input.PreviousOutput,
			consumer:   t.Hash,
			inputIndex: int32(j),
			since:      codec.SinceBytes(input.Since),
		})
	}
}

func (bp *BlockProcessor) addScript(rows *blockRows, s codec.Script) codec.Hash {
	hash, _ := bp.scriptHash(s)
	if _, ok := rows.seenScripts[hash]; !ok {
		rows.seenScripts[hash] = struct{}{}
		rows.scripts = append(rows.scripts, models.Script{
			Hash:     hash.Bytes(),
			CodeHash: s.CodeHash.Bytes(),
			HashType: int16(s.HashType),
			Args:     nonNil(s.Args),
		})
	}
	return hash
}

// write inserts every row in dependency order and then marks consumed cells
func (r *blockRows) write(tx *gorm.DB, log *logger.Logger) error {
	if err := tx.Create(&r.header).Error; err != nil {
		return fmt.Errorf("insert block_headers: %w", err)
	}

	steps := []struct {
		table string
		count int
		run   func() error
	}{
		{"uncle_headers", len(r.uncleHeaders), func() error {
			return insertIgnore(tx, "uncle_headers", r.uncleHeaders, HEADER_BATCH_SIZE)
		}},
		{"block_uncles", len(r.blockUncles), func() error {
			return insertIgnore(tx, "block_uncles", r.blockUncles, HEADER_BATCH_SIZE)
		}},
		{"block_proposals", len(r.proposals), func() error {
			return insertIgnore(tx, "block_proposals", r.proposals, DEP_BATCH_SIZE)
		}},
		{"block_transactions", len(r.links), func() error {
			return insertIgnore(tx, "block_transactions", r.links, TRANSACTION_BATCH_SIZE)
		}},
		{"transactions", len(r.transactions), func() error {
			return insertIgnore(tx, "transactions", r.transactions, TRANSACTION_BATCH_SIZE)
		}},
		{"tx_cell_deps", len(r.cellDeps), func() error {
			return insertIgnore(tx, "tx_cell_deps", r.cellDeps, DEP_BATCH_SIZE)
		}},
		{"tx_header_deps", len(r.headerDeps), func() error {
			return insertIgnore(tx, "tx_header_deps", r.headerDeps, DEP_BATCH_SIZE)
		}},
		{"tx_witnesses", len(r.witnesses), func() error {
			return insertIgnore(tx, "tx_witnesses", r.witnesses, DEP_BATCH_SIZE)
		}},
		{"cells_data", len(r.cellData), func() error {
			return insertIgnore(tx, "cells_data", r.cellData, CELL_BATCH_SIZE)
		}},
		{"scripts", len(r.scripts), func() error {
			return insertIgnore(tx, "scripts", r.scripts, CELL_BATCH_SIZE)
		}},
		{"cells", len(r.cells), func() error {
			return insertIgnore(tx, "cells", r.cells, CELL_BATCH_SIZE)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return err
		}
		if step.count > 0 {
			log.Trace("InsertBlock", "%s: %d rows", step.table, step.count)
		}
	}

	for _, c := range r.consumptions {
		res := tx.Model(&models.Cell{}).
			Where(matchOutPoint("tx_hash", c.cell.TxHash.Bytes(), "index", int32(c.cell.Index))).
			Updates(map[string]interface{}{
				"consumed_tx_hash": c.consumer.Bytes(),
				"consumed_index":   c.inputIndex,
				"consumed_since":   c.since,
			})
		if res.Error != nil {
			return fmt.Errorf("consume cells: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			log.Trace("InsertBlock", "input %s#%d spends an unknown cell", c.cell.TxHash, c.cell.Index)
		}
	}
	return nil
}

// sortByIndexDesc orders link rows last-to-first
func sortByIndexDesc[T any](rows []T, index func(T) int32) {
	sort.SliceStable(rows, func(i, j int) bool {
		return index(rows[i]) > index(rows[j])
	})
}
