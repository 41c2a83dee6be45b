package models

// Header columns shared by block_headers and uncle_headers. Unsigned chain
// values are stored bit-cast into the signed column of the same width.
type HeaderColumns struct {
	Version          int32  `gorm:"not null"`
	CompactTarget    int64  `gorm:"not null"`
	Timestamp        int64  `gorm:"not null"`
	EpochNumber      int32  `gorm:"not null"`
	EpochIndex       int32  `gorm:"not null"`
	EpochLength      int32  `gorm:"not null"`
	ParentHash       []byte `gorm:"size:32;not null"`
	TransactionsRoot []byte `gorm:"size:32;not null"`
	ProposalsHash    []byte `gorm:"size:32;not null"`
	UnclesHash       []byte `gorm:"size:32;not null"`
	DaoC             int64  `gorm:"column:dao_c;not null"`
	DaoAR            int64  `gorm:"column:dao_ar;not null"`
	DaoS             int64  `gorm:"column:dao_s;not null"`
	DaoU             int64  `gorm:"column:dao_u;not null"`
	Nonce            []byte `gorm:"size:16;not null"`
}

// BlockHeader is a canonical block; number is unique and contiguous
type BlockHeader struct {
	Hash   []byte `gorm:"primaryKey;size:32"`
	Number int64  `gorm:"not null;unique"`
	HeaderColumns
}

func (BlockHeader) TableName() string { return "block_headers" }

// UncleHeader is shared by every block that links the uncle
type UncleHeader struct {
	Hash   []byte `gorm:"primaryKey;size:32"`
	Number int64  `gorm:"not null"`
	HeaderColumns
}

func (UncleHeader) TableName() string { return "uncle_headers" }

type BlockUncle struct {
	BlockHash []byte `gorm:"primaryKey;size:32"`
	UncleHash []byte `gorm:"primaryKey;size:32;index:idx_block_uncles_uncle_hash"`
	Index     int32  `gorm:"column:index;not null"`
}

func (BlockUncle) TableName() string { return "block_uncles" }

// BlockProposal belongs to a block or an uncle, keyed by the container hash
type BlockProposal struct {
	BlockHash []byte `gorm:"primaryKey;size:32"`
	ShortID   []byte `gorm:"column:short_id;primaryKey;size:10"`
	Index     int32  `gorm:"column:index;not null"`
}

func (BlockProposal) TableName() string { return "block_proposals" }
