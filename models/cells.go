package models

// Cell is one transaction output. The consumed_* columns are all NULL while
// the cell is unspent.
type Cell struct {
	TxHash         []byte `gorm:"primaryKey;size:32"`
	Index          int32  `gorm:"column:index;primaryKey;autoIncrement:false"`
	Capacity       int64  `gorm:"not null"`
	LockHash       []byte `gorm:"size:32;not null;index:idx_cells_lock_hash"`
	TypeHash       []byte `gorm:"size:32;index:idx_cells_type_hash"`
	DataHash       []byte `gorm:"size:32;not null;index:idx_cells_data_hash"`
	ConsumedTxHash []byte `gorm:"size:32;index:idx_cells_consumed_tx_hash"`
	ConsumedIndex  *int32
	ConsumedSince  []byte `gorm:"size:8"`
}

func (Cell) TableName() string { return "cells" }

// CellData is content-addressed by the data hash and shared between cells
type CellData struct {
	Hash []byte `gorm:"primaryKey;size:32"`
	Data []byte `gorm:"not null"`
}

func (CellData) TableName() string { return "cells_data" }

// Script is content-addressed by the script hash and shared between cells
type Script struct {
	Hash     []byte `gorm:"primaryKey;size:32"`
	CodeHash []byte `gorm:"size:32;not null"`
	HashType int16  `gorm:"not null"`
	Args     []byte `gorm:"not null"`
}

func (Script) TableName() string { return "scripts" }

// All lists every table in creation order
func All() []interface{} {
	return []interface{}{
		&BlockHeader{},
		&BlockUncle{},
		&UncleHeader{},
		&BlockProposal{},
		&BlockTransaction{},
		&Transaction{},
		&TxCellDep{},
		&TxHeaderDep{},
		&TxWitness{},
		&Cell{},
		&CellData{},
		&Script{},
	}
}

// TableNames lists every table in the same order as All
func TableNames() []string {
	return []string{
		"block_headers",
		"block_uncles",
		"uncle_headers",
		"block_proposals",
		"block_transactions",
		"transactions",
		"tx_cell_deps",
		"tx_header_deps",
		"tx_witnesses",
		"cells",
		"cells_data",
		"scripts",
	}
}
