package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"cellar/codec"
)

// Node JSON uses 0x-prefixed hex for every quantity and byte string.

type rpcHeader struct {
	Hash             common.Hash    `json:"hash"`
	Version          hexutil.Uint64 `json:"version"`
	CompactTarget    hexutil.Uint64 `json:"compact_target"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	Number           hexutil.Uint64 `json:"number"`
	Epoch            hexutil.Uint64 `json:"epoch"`
	ParentHash       common.Hash    `json:"parent_hash"`
	TransactionsRoot common.Hash    `json:"transactions_root"`
	ProposalsHash    common.Hash    `json:"proposals_hash"`
	UnclesHash       *common.Hash   `json:"uncles_hash,omitempty"`
	ExtraHash        *common.Hash   `json:"extra_hash,omitempty"`
	Dao              hexutil.Bytes  `json:"dao"`
	Nonce            *hexutil.Big   `json:"nonce"`
}

type rpcUncle struct {
	Header    rpcHeader       `json:"header"`
	Proposals []hexutil.Bytes `json:"proposals"`
}

type rpcOutPoint struct {
	TxHash common.Hash    `json:"tx_hash"`
	Index  hexutil.Uint64 `json:"index"`
}

type rpcCellDep struct {
	OutPoint rpcOutPoint `json:"out_point"`
	DepType  string      `json:"dep_type"`
}

type rpcCellInput struct {
	PreviousOutput rpcOutPoint    `json:"previous_output"`
	Since          hexutil.Uint64 `json:"since"`
}

type rpcScript struct {
	CodeHash common.Hash   `json:"code_hash"`
	HashType string        `json:"hash_type"`
	Args     hexutil.Bytes `json:"args"`
}

type rpcCellOutput struct {
	Capacity hexutil.Uint64 `json:"capacity"`
	Lock     rpcScript      `json:"lock"`
	Type     *rpcScript     `json:"type"`
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	Version     hexutil.Uint64  `json:"version"`
	CellDeps    []rpcCellDep    `json:"cell_deps"`
	HeaderDeps  []common.Hash   `json:"header_deps"`
	Inputs      []rpcCellInput  `json:"inputs"`
	Outputs     []rpcCellOutput `json:"outputs"`
	OutputsData []hexutil.Bytes `json:"outputs_data"`
	Witnesses   []hexutil.Bytes `json:"witnesses"`
}

type rpcBlock struct {
	Header       rpcHeader        `json:"header"`
	Uncles       []rpcUncle       `json:"uncles"`
	Transactions []rpcTransaction `json:"transactions"`
	Proposals    []hexutil.Bytes  `json:"proposals"`
}

// UnmarshalJSON decodes a block from the node's get_block_by_number result
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw rpcBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	header, err := raw.Header.toHeader()
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	block := Block{Header: header}

	if block.Proposals, err = toShortIDs(raw.Proposals); err != nil {
		return fmt.Errorf("block %d proposals: %w", header.Number, err)
	}
	for i, u := range raw.Uncles {
		uncleHeader, err := u.Header.toHeader()
		if err != nil {
			return fmt.Errorf("block %d uncle %d: %w", header.Number, i, err)
		}
		proposals, err := toShortIDs(u.Proposals)
		if err != nil {
			return fmt.Errorf("block %d uncle %d proposals: %w", header.Number, i, err)
		}
		block.Uncles = append(block.Uncles, UncleBlock{Header: uncleHeader, Proposals: proposals})
	}
	for i, rtx := range raw.Transactions {
		tx, err := rtx.toTransaction()
		if err != nil {
			return fmt.Errorf("block %d transaction %d: %w", header.Number, i, err)
		}
		block.Transactions = append(block.Transactions, tx)
	}
	*b = block
	return nil
}

// MarshalJSON produces the node's representation, with the newer extra_hash field name
func (b Block) MarshalJSON() ([]byte, error) {
	raw := rpcBlock{
		Header:       fromHeader(b.Header),
		Uncles:       make([]rpcUncle, 0, len(b.Uncles)),
		Transactions: make([]rpcTransaction, 0, len(b.Transactions)),
		Proposals:    fromShortIDs(b.Proposals),
	}
	for _, u := range b.Uncles {
		raw.Uncles = append(raw.Uncles, rpcUncle{Header: fromHeader(u.Header), Proposals: fromShortIDs(u.Proposals)})
	}
	for _, tx := range b.Transactions {
		raw.Transactions = append(raw.Transactions, fromTransaction(tx))
	}
	return json.Marshal(raw)
}

func (h rpcHeader) toHeader() (Header, error) {
	header := Header{
		Hash:             codec.Hash(h.Hash),
		Version:          uint32(h.Version),
		CompactTarget:    uint32(h.CompactTarget),
		Timestamp:        uint64(h.Timestamp),
		Number:           uint64(h.Number),
		Epoch:            codec.UnpackEpoch(uint64(h.Epoch)),
		ParentHash:       codec.Hash(h.ParentHash),
		TransactionsRoot: codec.Hash(h.TransactionsRoot),
		ProposalsHash:    codec.Hash(h.ProposalsHash),
	}
	switch {
	case h.ExtraHash != nil:
		header.UnclesHash = codec.Hash(*h.ExtraHash)
	case h.UnclesHash != nil:
		header.UnclesHash = codec.Hash(*h.UnclesHash)
	default:
		return header, fmt.Errorf("missing uncles_hash")
	}
	if len(h.Dao) != codec.DaoLength {
		return header, fmt.Errorf("dao has %d bytes, want %d", len(h.Dao), codec.DaoLength)
	}
	var dao [codec.DaoLength]byte
	copy(dao[:], h.Dao)
	header.Dao = codec.UnpackDao(dao)
	if h.Nonce == nil {
		return header, fmt.Errorf("missing nonce")
	}
	if h.Nonce.ToInt().BitLen() > 8*codec.NonceLength {
		return header, fmt.Errorf("nonce exceeds 128 bits")
	}
	header.Nonce = codec.NonceBytes(h.Nonce.ToInt())
	return header, nil
}

func fromHeader(h Header) rpcHeader {
	extra := common.Hash(h.UnclesHash)
	dao := h.Dao.Pack()
	nonce := make([]byte, codec.NonceLength)
	for i, b := range h.Nonce {
		nonce[codec.NonceLength-1-i] = b
	}
	return rpcHeader{
		Hash:             common.Hash(h.Hash),
		Version:          hexutil.Uint64(h.Version),
		CompactTarget:    hexutil.Uint64(h.CompactTarget),
		Timestamp:        hexutil.Uint64(h.Timestamp),
		Number:           hexutil.Uint64(h.Number),
		Epoch:            hexutil.Uint64(h.Epoch.Pack()),
		ParentHash:       common.Hash(h.ParentHash),
		TransactionsRoot: common.Hash(h.TransactionsRoot),
		ProposalsHash:    common.Hash(h.ProposalsHash),
		ExtraHash:        &extra,
		Dao:              dao[:],
		Nonce:            (*hexutil.Big)(new(big.Int).SetBytes(nonce)),
	}
}

func (t rpcTransaction) toTransaction() (Transaction, error) {
	tx := Transaction{
		Hash:        codec.Hash(t.Hash),
		Version:     uint32(t.Version),
		CellDeps:    make([]CellDep, 0, len(t.CellDeps)),
		HeaderDeps:  make([]codec.Hash, 0, len(t.HeaderDeps)),
		Inputs:      make([]CellInput, 0, len(t.Inputs)),
		Outputs:     make([]CellOutput, 0, len(t.Outputs)),
		OutputsData: make([][]byte, 0, len(t.OutputsData)),
		Witnesses:   make([][]byte, 0, len(t.Witnesses)),
	}
	for _, dep := range t.CellDeps {
		depType, err := codec.ParseDepType(dep.DepType)
		if err != nil {
			return tx, err
		}
		tx.CellDeps = append(tx.CellDeps, CellDep{OutPoint: dep.OutPoint.toOutPoint(), DepType: depType})
	}
	for _, h := range t.HeaderDeps {
		tx.HeaderDeps = append(tx.HeaderDeps, codec.Hash(h))
	}
	for _, in := range t.Inputs {
		tx.Inputs = append(tx.Inputs, CellInput{PreviousOutput: in.PreviousOutput.toOutPoint(), Since: uint64(in.Since)})
	}
	for _, out := range t.Outputs {
		lock, err := out.Lock.toScript()
		if err != nil {
			return tx, fmt.Errorf("lock: %w", err)
		}
		output := CellOutput{Capacity: uint64(out.Capacity), Lock: lock}
		if out.Type != nil {
			typeScript, err := out.Type.toScript()
			if err != nil {
				return tx, fmt.Errorf("type: %w", err)
			}
			output.Type = &typeScript
		}
		tx.Outputs = append(tx.Outputs, output)
	}
	for _, data := range t.OutputsData {
		tx.OutputsData = append(tx.OutputsData, []byte(data))
	}
	for _, w := range t.Witnesses {
		tx.Witnesses = append(tx.Witnesses, []byte(w))
	}
	return tx, nil
}

func fromTransaction(tx Transaction) rpcTransaction {
	raw := rpcTransaction{
		Hash:        common.Hash(tx.Hash),
		Version:     hexutil.Uint64(tx.Version),
		CellDeps:    make([]rpcCellDep, 0, len(tx.CellDeps)),
		HeaderDeps:  make([]common.Hash, 0, len(tx.HeaderDeps)),
		Inputs:      make([]rpcCellInput, 0, len(tx.Inputs)),
		Outputs:     make([]rpcCellOutput, 0, len(tx.Outputs)),
		OutputsData: make([]hexutil.Bytes, 0, len(tx.OutputsData)),
		Witnesses:   make([]hexutil.Bytes, 0, len(tx.Witnesses)),
	}
	for _, dep := range tx.CellDeps {
		depType := "code"
		if dep.DepType == codec.DepTypeDepGroup {
			depType = "dep_group"
		}
		raw.CellDeps = append(raw.CellDeps, rpcCellDep{OutPoint: fromOutPoint(dep.OutPoint), DepType: depType})
	}
	for _, h := range tx.HeaderDeps {
		raw.HeaderDeps = append(raw.HeaderDeps, common.Hash(h))
	}
	for _, in := range tx.Inputs {
		raw.Inputs = append(raw.Inputs, rpcCellInput{PreviousOutput: fromOutPoint(in.PreviousOutput), Since: hexutil.Uint64(in.Since)})
	}
	for _, out := range tx.Outputs {
		rout := rpcCellOutput{Capacity: hexutil.Uint64(out.Capacity), Lock: fromScript(out.Lock)}
		if out.Type != nil {
			typeScript := fromScript(*out.Type)
			rout.Type = &typeScript
		}
		raw.Outputs = append(raw.Outputs, rout)
	}
	for _, data := range tx.OutputsData {
		raw.OutputsData = append(raw.OutputsData, data)
	}
	for _, w := range tx.Witnesses {
		raw.Witnesses = append(raw.Witnesses, w)
	}
	return raw
}

func (o rpcOutPoint) toOutPoint() OutPoint {
	return OutPoint{TxHash: codec.Hash(o.TxHash), Index: uint32(o.Index)}
}

func fromOutPoint(o OutPoint) rpcOutPoint {
	return rpcOutPoint{TxHash: common.Hash(o.TxHash), Index: hexutil.Uint64(o.Index)}
}

func (s rpcScript) toScript() (codec.Script, error) {
	hashType, err := codec.ParseHashType(s.HashType)
	if err != nil {
		return codec.Script{}, err
	}
	return codec.Script{CodeHash: codec.Hash(s.CodeHash), HashType: hashType, Args: []byte(s.Args)}, nil
}

var hashTypeJSON = map[codec.HashType]string{
	codec.HashTypeData:  "data",
	codec.HashTypeType:  "type",
	codec.HashTypeData1: "data1",
	codec.HashTypeData2: "data2",
}

func fromScript(s codec.Script) rpcScript {
	args := s.Args
	if args == nil {
		args = []byte{}
	}
	return rpcScript{CodeHash: common.Hash(s.CodeHash), HashType: hashTypeJSON[s.HashType], Args: args}
}

func toShortIDs(raw []hexutil.Bytes) ([]codec.ShortID, error) {
	ids := make([]codec.ShortID, 0, len(raw))
	for _, p := range raw {
		if len(p) != codec.ShortIDLength {
			return nil, fmt.Errorf("proposal short id has %d bytes, want %d", len(p), codec.ShortIDLength)
		}
		var id codec.ShortID
		copy(id[:], p)
		ids = append(ids, id)
	}
	return ids, nil
}

func fromShortIDs(ids []codec.ShortID) []hexutil.Bytes {
	raw := make([]hexutil.Bytes, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, append([]byte(nil), id[:]...))
	}
	return raw
}
