// Package codec holds the fixed-size binary field rules shared by the RPC
// decoder and the relational store.
package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/minio/blake2b-simd"

	unifiederrors "cellar/errors"
)

const (
	HashLength    = 32
	ShortIDLength = 10
	NonceLength   = 16
	DaoLength     = 32
)

var ckbHashPersonalization = []byte("ckb-default-hash")

// Hash is a 32-byte chain identifier
type Hash [HashLength]byte

// ZeroHash is the data hash of empty cell data
var ZeroHash Hash

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// HashFromBytes decodes a stored hash, refusing any other length
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, &unifiederrors.DataIntegrityError{
			Column: "hash",
			Detail: fmt.Sprintf("incorrect hash length %d", len(b)),
		}
	}
	copy(h[:], b)
	return h, nil
}

// ShortID is a 10-byte proposal short id
type ShortID [ShortIDLength]byte

func (s ShortID) Bytes() []byte { return s[:] }

// CKBHash is blake2b-256 personalized with "ckb-default-hash"
func CKBHash(data []byte) Hash {
	hasher, err := blake2b.New(&blake2b.Config{Size: HashLength, Person: ckbHashPersonalization})
	if err != nil {
		// only reachable with an invalid static config
		panic(err)
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// DataHash is the content key of a cell data blob
func DataHash(data []byte) Hash {
	if len(data) == 0 {
		return ZeroHash
	}
	return CKBHash(data)
}
