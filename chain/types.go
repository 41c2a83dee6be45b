// Package chain defines the block shape ingested from a CKB node.
package chain

import "cellar/codec"

// Header identifies a block or an uncle
type Header struct {
	Hash             codec.Hash
	Version          uint32
	CompactTarget    uint32
	Timestamp        uint64
	Number           uint64
	Epoch            codec.Epoch
	ParentHash       codec.Hash
	TransactionsRoot codec.Hash
	ProposalsHash    codec.Hash
	UnclesHash       codec.Hash
	Dao              codec.Dao
	Nonce            [codec.NonceLength]byte
}

// UncleBlock is an uncle header with the proposals it carried
type UncleBlock struct {
	Header    Header
	Proposals []codec.ShortID
}

// OutPoint references one output of a transaction
type OutPoint struct {
	TxHash codec.Hash
	Index  uint32
}

type CellDep struct {
	OutPoint OutPoint
	DepType  codec.DepType
}

type CellInput struct {
	PreviousOutput OutPoint
	Since          uint64
}

type CellOutput struct {
	Capacity uint64
	Lock     codec.Script
	Type     *codec.Script
}

// Transaction keeps outputs and outputs data index-aligned
type Transaction struct {
	Hash        codec.Hash
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  []codec.Hash
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData [][]byte
	Witnesses   [][]byte
}

// Block is a canonical block as served by the node
type Block struct {
	Header       Header
	Uncles       []UncleBlock
	Transactions []Transaction
	Proposals    []codec.ShortID
}

func (b *Block) Hash() codec.Hash { return b.Header.Hash }

func (b *Block) Number() uint64 { return b.Header.Number }

func (b *Block) ParentHash() codec.Hash { return b.Header.ParentHash }

// OutputData returns the data of output i, empty when the node sent fewer data entries than outputs
func (tx *Transaction) OutputData(i int) []byte {
	if i < len(tx.OutputsData) {
		return tx.OutputsData[i]
	}
	return nil
}
