package chain

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	"taostats/internal/scale"
)

// Signer signs extrinsic payloads for one account.
type Signer interface {
	Address() string
	PublicKey() [32]byte
	// SignatureType is the MultiSignature variant byte.
	SignatureType() byte
	Sign(payload []byte) ([]byte, error)
}

const extrinsicVersionSigned = 0x84

// SignOptions carries the chain context an extrinsic is signed against.
type SignOptions struct {
	Genesis     common.Hash
	SpecVersion uint32
	TxVersion   uint32
	Nonce       uint32
	Tip         uint64

	// Period is the mortality window in blocks; zero signs an immortal extrinsic.
	Period      uint64
	BirthNumber uint64
	BirthHash   common.Hash

	// MetadataHash adds the CheckMetadataHash extension in disabled mode.
	MetadataHash bool
}

// BuildSigned encodes a signed v4 extrinsic, length prefixed as submitted.
func BuildSigned(call Call, signer Signer, opts SignOptions) ([]byte, error) {
	encodedCall := call.Encode()

	era := []byte{0x00}
	birth := opts.Genesis
	if opts.Period > 0 {
		era = encodeMortalEra(opts.Period, opts.BirthNumber)
		birth = opts.BirthHash
	}

	extra := scale.NewEncoder().Raw(era).Compact(uint64(opts.Nonce)).Compact(opts.Tip)
	if opts.MetadataHash {
		extra.U8(0)
	}

	additional := scale.NewEncoder().
		U32(opts.SpecVersion).
		U32(opts.TxVersion).
		Raw(opts.Genesis.Bytes()).
		Raw(birth.Bytes())
	if opts.MetadataHash {
		additional.U8(0)
	}

	payload := make([]byte, 0, len(encodedCall)+len(extra.Bytes())+len(additional.Bytes()))
	payload = append(payload, encodedCall...)
	payload = append(payload, extra.Bytes()...)
	payload = append(payload, additional.Bytes()...)
	if len(payload) > 256 {
		sum := blake2b.Sum256(payload)
		payload = sum[:]
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call, err)
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("sign %s: unexpected signature length %d", call, len(sig))
	}

	pub := signer.PublicKey()
	body := scale.NewEncoder().
		U8(extrinsicVersionSigned).
		U8(0). // MultiAddress::Id
		Raw(pub[:]).
		U8(signer.SignatureType()).
		Raw(sig).
		Raw(extra.Bytes()).
		Raw(encodedCall).
		Bytes()

	return scale.NewEncoder().Vec(body).Bytes(), nil
}

// ExtrinsicHash is the blake2b-256 hash nodes report for a submitted extrinsic.
func ExtrinsicHash(ext []byte) common.Hash {
	return common.Hash(blake2b.Sum256(ext))
}

func encodeMortalEra(period, current uint64) []byte {
	if period < 4 {
		period = 4
	}
	if period > 1<<16 {
		period = 1 << 16
	}
	// round up to a power of two
	if period&(period-1) != 0 {
		period = 1 << (64 - bits.LeadingZeros64(period))
	}

	phase := current % period
	quantize := period >> 12
	if quantize < 1 {
		quantize = 1
	}
	quantizedPhase := phase / quantize * quantize

	low := uint64(bits.TrailingZeros64(period)) - 1
	if low < 1 {
		low = 1
	}
	if low > 15 {
		low = 15
	}
	encoded := uint16(low) | uint16(quantizedPhase/quantize)<<4
	return []byte{byte(encoded), byte(encoded >> 8)}
}
