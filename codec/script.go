package codec

import (
	"encoding/binary"
	"fmt"
)

// HashType selects how a script's code_hash is matched
type HashType uint8

const (
	HashTypeData  HashType = 0
	HashTypeType  HashType = 1
	HashTypeData1 HashType = 2
	HashTypeData2 HashType = 4
)

var hashTypeNames = map[string]HashType{
	"data":  HashTypeData,
	"type":  HashTypeType,
	"data1": HashTypeData1,
	"data2": HashTypeData2,
}

// ParseHashType maps the RPC name of a hash type onto its byte value
func ParseHashType(name string) (HashType, error) {
	if ht, ok := hashTypeNames[name]; ok {
		return ht, nil
	}
	return 0, fmt.Errorf("unknown hash_type %q", name)
}

// DepType is the kind of a cell dependency
type DepType uint8

const (
	DepTypeCode     DepType = 0
	DepTypeDepGroup DepType = 1
)

// ParseDepType maps the RPC name of a dep type onto its byte value
func ParseDepType(name string) (DepType, error) {
	switch name {
	case "code":
		return DepTypeCode, nil
	case "dep_group":
		return DepTypeDepGroup, nil
	}
	return 0, fmt.Errorf("unknown dep_type %q", name)
}

// Script is a lock or type script
type Script struct {
	CodeHash Hash
	HashType HashType
	Args     []byte
}

// SerializeScript encodes a script as a molecule table:
// total size, three field offsets, code_hash, hash_type, args as a length-prefixed byte vector.
func SerializeScript(s Script) []byte {
	const header = 4 * 4
	codeHashOffset := header
	hashTypeOffset := codeHashOffset + HashLength
	argsOffset := hashTypeOffset + 1
	total := argsOffset + 4 + len(s.Args)

	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:4], uint32(total))
	binary.LittleEndian.PutUint32(out[4:8], uint32(codeHashOffset))
	binary.LittleEndian.PutUint32(out[8:12], uint32(hashTypeOffset))
	binary.LittleEndian.PutUint32(out[12:16], uint32(argsOffset))
	copy(out[codeHashOffset:], s.CodeHash[:])
	out[hashTypeOffset] = byte(s.HashType)
	binary.LittleEndian.PutUint32(out[argsOffset:], uint32(len(s.Args)))
	copy(out[argsOffset+4:], s.Args)
	return out
}

// ScriptHash is the content key of a script
func ScriptHash(s Script) Hash {
	return CKBHash(SerializeScript(s))
}
