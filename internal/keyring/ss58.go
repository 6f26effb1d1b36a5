package keyring

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SubstrateFormat is the generic SS58 network prefix used by Bittensor.
const SubstrateFormat uint16 = 42

var ss58Prefix = []byte("SS58PRE")

// ErrInvalidAddress is returned for strings that are not SS58 account addresses.
var ErrInvalidAddress = errors.New("invalid ss58 address")

func ss58Checksum(data []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Prefix)
	h.Write(data)
	return h.Sum(nil)[:2]
}

// EncodeAddress renders a 32-byte public key as an SS58 address.
func EncodeAddress(pub [32]byte, format uint16) string {
	var prefix []byte
	if format < 64 {
		prefix = []byte{byte(format)}
	} else {
		ident := format & 0x3fff
		first := byte((ident&0xfc)>>2) | 0x40
		second := byte(ident>>8) | byte(ident&0x03)<<6
		prefix = []byte{first, second}
	}
	payload := append(prefix, pub[:]...)
	return base58.Encode(append(payload, ss58Checksum(payload)...))
}

// DecodeAddress returns the public key of an SS58 address, accepting any network prefix.
func DecodeAddress(address string) ([32]byte, error) {
	var pub [32]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return pub, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	if len(raw) == 0 {
		return pub, fmt.Errorf("%w %q: empty", ErrInvalidAddress, address)
	}

	prefixLen := 1
	switch {
	case raw[0] < 64:
	case raw[0] < 128:
		prefixLen = 2
	default:
		return pub, fmt.Errorf("%w %q: reserved prefix", ErrInvalidAddress, address)
	}
	if len(raw) != prefixLen+32+2 {
		return pub, fmt.Errorf("%w %q: unexpected length %d", ErrInvalidAddress, address, len(raw))
	}

	body := raw[:prefixLen+32]
	if !bytes.Equal(raw[prefixLen+32:], ss58Checksum(body)) {
		return pub, fmt.Errorf("%w %q: checksum mismatch", ErrInvalidAddress, address)
	}
	copy(pub[:], raw[prefixLen:prefixLen+32])
	return pub, nil
}

// ValidAddress reports whether address decodes as an SS58 account address.
func ValidAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}

// AccountID returns the SCALE encoding of the AccountId32 behind address.
func AccountID(address string) ([]byte, error) {
	pub, err := DecodeAddress(address)
	if err != nil {
		return nil, err
	}
	return pub[:], nil
}
