package scale

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	gscale "github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/shopspring/decimal"
)

// ErrShortBuffer is returned when the input ends before a value is complete.
var ErrShortBuffer = errors.New("scale: short buffer")

// Decoder reads SCALE encoded values from a byte slice.
type Decoder struct {
	r    *bytes.Reader
	dec  *gscale.Decoder
	size int
}

func NewDecoder(data []byte) *Decoder {
	r := bytes.NewReader(data)
	return &Decoder{r: r, dec: gscale.NewDecoder(r), size: len(data)}
}

// Remaining reports how many bytes are left.
func (d *Decoder) Remaining() int {
	return d.r.Len()
}

// Codec exposes the underlying decoder for metadata driven types.
func (d *Decoder) Codec() *gscale.Decoder {
	return d.dec
}

func (d *Decoder) need(n int) error {
	if n < 0 || d.Remaining() < n {
		return fmt.Errorf("read %d bytes at offset %d: %w", n, d.size-d.Remaining(), ErrShortBuffer)
	}
	return nil
}

func (d *Decoder) get(n int, target interface{}) error {
	if err := d.need(n); err != nil {
		return err
	}
	return d.dec.Decode(target)
}

func (d *Decoder) Bytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if err := d.dec.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Decoder) U8() (uint8, error) {
	var v uint8
	err := d.get(1, &v)
	return v, err
}

// Bool rejects bytes other than 0 and 1.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("scale: invalid bool byte 0x%02x", b)
	}
}

func (d *Decoder) U16() (uint16, error) {
	var v uint16
	err := d.get(2, &v)
	return v, err
}

func (d *Decoder) U32() (uint32, error) {
	var v uint32
	err := d.get(4, &v)
	return v, err
}

func (d *Decoder) U64() (uint64, error) {
	var v uint64
	err := d.get(8, &v)
	return v, err
}

func (d *Decoder) U128() (*big.Int, error) {
	var v types.U128
	if err := d.get(16, &v); err != nil {
		return nil, err
	}
	return v.Int, nil
}

// Compact reads a compact-encoded unsigned integer.
func (d *Decoder) Compact() (*big.Int, error) {
	if err := d.need(1); err != nil {
		return nil, err
	}
	v, err := d.dec.DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("decode compact at offset %d: %w", d.size-d.Remaining(), err)
	}
	return v, nil
}

var fixedScale = new(big.Int).Exp(big.NewInt(5), big.NewInt(64), nil)

// FixedU64F64 converts the raw bits of a U64F64 fixed-point number to its exact value.
func FixedU64F64(bits *big.Int) decimal.Decimal {
	if bits == nil {
		return decimal.Zero
	}
	// bits / 2^64 == bits * 5^64 / 10^64
	return decimal.NewFromBigInt(new(big.Int).Mul(bits, fixedScale), -64)
}

// DecodeU64 decodes a storage value holding a single u64.
func DecodeU64(raw []byte) (uint64, error) {
	return NewDecoder(raw).U64()
}

// DecodeU128 decodes a storage value holding a single u128.
func DecodeU128(raw []byte) (*big.Int, error) {
	return NewDecoder(raw).U128()
}

// DecodeBool decodes a storage value holding a single bool.
func DecodeBool(raw []byte) (bool, error) {
	return NewDecoder(raw).Bool()
}
