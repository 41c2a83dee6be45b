package codec

import (
	"encoding/binary"
	"math/big"
)

// Dao is the reward-accounting tuple packed into a header's dao field
type Dao struct {
	C  uint64
	AR uint64
	S  uint64
	U  uint64
}

// UnpackDao reads four little-endian u64 values
func UnpackDao(raw [DaoLength]byte) Dao {
	return Dao{
		C:  binary.LittleEndian.Uint64(raw[0:8]),
		AR: binary.LittleEndian.Uint64(raw[8:16]),
		S:  binary.LittleEndian.Uint64(raw[16:24]),
		U:  binary.LittleEndian.Uint64(raw[24:32]),
	}
}

// Pack is the inverse of UnpackDao
func (d Dao) Pack() [DaoLength]byte {
	var raw [DaoLength]byte
	binary.LittleEndian.PutUint64(raw[0:8], d.C)
	binary.LittleEndian.PutUint64(raw[8:16], d.AR)
	binary.LittleEndian.PutUint64(raw[16:24], d.S)
	binary.LittleEndian.PutUint64(raw[24:32], d.U)
	return raw
}

// Epoch is an epoch number with its fractional position
type Epoch struct {
	Number uint64
	Index  uint64
	Length uint64
}

// UnpackEpoch splits the packed epoch field: 24 bits number, 16 bits index, 16 bits length
func UnpackEpoch(e uint64) Epoch {
	return Epoch{
		Number: e & 0xffffff,
		Index:  (e >> 24) & 0xffff,
		Length: (e >> 40) & 0xffff,
	}
}

// Pack is the inverse of UnpackEpoch
func (e Epoch) Pack() uint64 {
	return (e.Number & 0xffffff) | (e.Index&0xffff)<<24 | (e.Length&0xffff)<<40
}

// NonceBytes encodes a u128 nonce as 16 little-endian bytes. Bits above 128 are dropped.
func NonceBytes(n *big.Int) [NonceLength]byte {
	var out [NonceLength]byte
	if n == nil {
		return out
	}
	be := n.Bytes()
	if len(be) > NonceLength {
		be = be[len(be)-NonceLength:]
	}
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out
}

// SinceBytes is the stored form of an input's since value
func SinceBytes(since uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, since)
	return out
}
