package models

type BlockTransaction struct {
	BlockHash []byte `gorm:"primaryKey;size:32"`
	TxHash    []byte `gorm:"primaryKey;size:32;index:idx_block_transactions_tx_hash"`
	Index     int32  `gorm:"column:index;not null"`
}

func (BlockTransaction) TableName() string { return "block_transactions" }

type Transaction struct {
	Hash    []byte `gorm:"primaryKey;size:32"`
	Version int32  `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// TxCellDep rows are scoped to one occurrence of the transaction: RefIndex
// is its position inside the containing block.
type TxCellDep struct {
	RefTxHash   []byte `gorm:"primaryKey;size:32"`
	RefIndex    int32  `gorm:"primaryKey;autoIncrement:false"`
	RefDepIndex int32  `gorm:"primaryKey;autoIncrement:false"`
	TxHash      []byte `gorm:"size:32;not null"`
	Index       int32  `gorm:"column:index;not null"`
	DepType     int16  `gorm:"not null"`
}

func (TxCellDep) TableName() string { return "tx_cell_deps" }

type TxHeaderDep struct {
	RefTxHash   []byte `gorm:"primaryKey;size:32"`
	RefIndex    int32  `gorm:"primaryKey;autoIncrement:false"`
	RefDepIndex int32  `gorm:"primaryKey;autoIncrement:false"`
	BlockHash   []byte `gorm:"size:32;not null"`
}

func (TxHeaderDep) TableName() string { return "tx_header_deps" }

type TxWitness struct {
	RefTxHash   []byte `gorm:"primaryKey;size:32"`
	RefIndex    int32  `gorm:"primaryKey;autoIncrement:false"`
	RefDepIndex int32  `gorm:"primaryKey;autoIncrement:false"`
	Witness     []byte `gorm:"not null"`
}

func (TxWitness) TableName() string { return "tx_witnesses" }
