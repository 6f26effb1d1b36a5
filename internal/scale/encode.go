// Package scale wraps the go-substrate-rpc-client SCALE codec with the
// chained builder used for storage keys, call arguments and extrinsics.
package scale

import (
	"bytes"
	"math/big"

	gscale "github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

var u128Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Encoder appends SCALE encoded values to a buffer.
type Encoder struct {
	buf bytes.Buffer
	enc *gscale.Encoder
}

func NewEncoder() *Encoder {
	e := &Encoder{}
	e.enc = gscale.NewEncoder(&e.buf)
	return e
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// put encodes v. Writes into a bytes.Buffer only fail on values the codec
// rejects, which the typed methods below never pass.
func (e *Encoder) put(v interface{}) *Encoder {
	if err := e.enc.Encode(v); err != nil {
		panic("scale: " + err.Error())
	}
	return e
}

func (e *Encoder) U8(v uint8) *Encoder {
	return e.put(v)
}

func (e *Encoder) Bool(v bool) *Encoder {
	return e.put(v)
}

func (e *Encoder) U16(v uint16) *Encoder {
	return e.put(v)
}

func (e *Encoder) U32(v uint32) *Encoder {
	return e.put(v)
}

func (e *Encoder) U64(v uint64) *Encoder {
	return e.put(v)
}

// U128 writes v as 16 little-endian bytes; values wider than 128 bits are truncated.
func (e *Encoder) U128(v *big.Int) *Encoder {
	n := new(big.Int)
	if v != nil {
		n.And(v, u128Mask)
	}
	return e.put(types.NewU128(*n))
}

// Raw appends bytes without a length prefix.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// Compact writes a compact-encoded unsigned integer.
func (e *Encoder) Compact(v uint64) *Encoder {
	return e.CompactBig(new(big.Int).SetUint64(v))
}

// CompactBig panics on negative values.
func (e *Encoder) CompactBig(v *big.Int) *Encoder {
	if err := e.enc.EncodeUintCompact(*v); err != nil {
		panic("scale: " + err.Error())
	}
	return e
}

// Vec writes a compact length prefix followed by b.
func (e *Encoder) Vec(b []byte) *Encoder {
	return e.Compact(uint64(len(b))).Raw(b)
}

// Str writes a length-prefixed UTF-8 string.
func (e *Encoder) Str(s string) *Encoder {
	return e.Vec([]byte(s))
}

// EncodeU16 is shorthand for a single encoded u16, the netuid storage key type.
func EncodeU16(v uint16) []byte {
	return NewEncoder().U16(v).Bytes()
}

func EncodeU64(v uint64) []byte {
	return NewEncoder().U64(v).Bytes()
}

func EncodeU128(v *big.Int) []byte {
	return NewEncoder().U128(v).Bytes()
}

func EncodeBool(v bool) []byte {
	return NewEncoder().Bool(v).Bytes()
}
