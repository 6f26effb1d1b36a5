// Package keyring derives signing keypairs from seed phrases, dev URIs or raw
// private keys and renders their SS58 addresses.
package keyring

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/pbkdf2"

	"taostats/internal/scale"
)

// DevPhrase is the well-known development mnemonic used when a URI starts with a junction.
const DevPhrase = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

// Scheme selects the signature algorithm.
type Scheme string

const (
	Sr25519 Scheme = "sr25519"
	Ed25519 Scheme = "ed25519"
)

// ParseScheme maps a config value to a Scheme; empty means sr25519.
func ParseScheme(value string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(Sr25519):
		return Sr25519, nil
	case string(Ed25519):
		return Ed25519, nil
	default:
		return "", fmt.Errorf("unsupported key type %q", value)
	}
}

// MultiSignature variant indexes.
const (
	sigEd25519 byte = 0x00
	sigSr25519 byte = 0x01
)

// Keypair signs extrinsic payloads for one account.
type Keypair struct {
	scheme Scheme
	pub    [32]byte
	format uint16

	ed *ed25519.PrivateKey
	sr *schnorrkel.SecretKey
}

// Address returns the SS58 address of the keypair.
func (k *Keypair) Address() string {
	return EncodeAddress(k.pub, k.format)
}

// PublicKey returns the 32-byte account id.
func (k *Keypair) PublicKey() [32]byte {
	return k.pub
}

// Scheme reports the signature algorithm.
func (k *Keypair) Scheme() Scheme {
	return k.scheme
}

// SignatureType is the MultiSignature variant byte for this keypair.
func (k *Keypair) SignatureType() byte {
	if k.scheme == Ed25519 {
		return sigEd25519
	}
	return sigSr25519
}

// Sign signs msg the way the runtime verifies extrinsic payloads.
func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	switch k.scheme {
	case Ed25519:
		return ed25519.Sign(*k.ed, msg), nil
	case Sr25519:
		sig, err := k.sr.Sign(schnorrkel.NewSigningContext([]byte("substrate"), msg))
		if err != nil {
			return nil, fmt.Errorf("sr25519 sign: %w", err)
		}
		encoded := sig.Encode()
		return encoded[:], nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.scheme)
	}
}

// FromSeed derives a keypair from a secret URI: a mnemonic or 0x-prefixed
// 32-byte mini secret, followed by optional //hard junctions and a ///password.
func FromSeed(uri string, scheme Scheme) (*Keypair, error) {
	phrase, junctions, password, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	mini, err := miniSecret(phrase, password)
	if err != nil {
		return nil, err
	}

	for _, j := range junctions {
		if !j.hard {
			return nil, fmt.Errorf("soft derivation /%s is not supported", j.raw)
		}
		mini, err = hardDerive(scheme, mini, j.chainCode)
		if err != nil {
			return nil, err
		}
	}

	return fromMiniSecret(mini, scheme)
}

// FromPrivateKey builds a keypair from a hex encoded 32-byte seed.
func FromPrivateKey(privateKey string, scheme Scheme) (*Keypair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	var mini [32]byte
	copy(mini[:], raw)
	return fromMiniSecret(mini, scheme)
}

func fromMiniSecret(mini [32]byte, scheme Scheme) (*Keypair, error) {
	kp := &Keypair{scheme: scheme, format: SubstrateFormat}
	switch scheme {
	case Ed25519:
		priv := ed25519.NewKeyFromSeed(mini[:])
		kp.ed = &priv
		copy(kp.pub[:], priv.Public().(ed25519.PublicKey))
	case Sr25519:
		msk, err := schnorrkel.NewMiniSecretKeyFromRaw(mini)
		if err != nil {
			return nil, fmt.Errorf("sr25519 mini secret: %w", err)
		}
		sk := msk.ExpandEd25519()
		pub, err := sk.Public()
		if err != nil {
			return nil, fmt.Errorf("sr25519 public key: %w", err)
		}
		kp.sr = sk
		kp.pub = pub.Encode()
	default:
		return nil, fmt.Errorf("unsupported key type %q", scheme)
	}
	return kp, nil
}

func miniSecret(phrase, password string) ([32]byte, error) {
	var out [32]byte
	if strings.HasPrefix(phrase, "0x") {
		raw, err := hex.DecodeString(phrase[2:])
		if err != nil {
			return out, fmt.Errorf("decode hex seed: %w", err)
		}
		if len(raw) != 32 {
			return out, fmt.Errorf("hex seed must be 32 bytes, got %d", len(raw))
		}
		copy(out[:], raw)
		return out, nil
	}

	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return out, fmt.Errorf("invalid mnemonic: %w", err)
	}
	seed := pbkdf2.Key(entropy, []byte("mnemonic"+password), 2048, 64, sha512.New)
	copy(out[:], seed[:32])
	return out, nil
}

func hardDerive(scheme Scheme, mini [32]byte, cc [32]byte) ([32]byte, error) {
	switch scheme {
	case Ed25519:
		enc := scale.NewEncoder().Str("Ed25519HDKD").Raw(mini[:]).Raw(cc[:]).Bytes()
		return blake2b.Sum256(enc), nil
	case Sr25519:
		msk, err := schnorrkel.NewMiniSecretKeyFromRaw(mini)
		if err != nil {
			return [32]byte{}, fmt.Errorf("sr25519 mini secret: %w", err)
		}
		derived, _, err := msk.ExpandEd25519().HardDeriveMiniSecretKey([]byte{}, cc)
		if err != nil {
			return [32]byte{}, fmt.Errorf("sr25519 hard derive: %w", err)
		}
		return derived.Encode(), nil
	default:
		return [32]byte{}, fmt.Errorf("unsupported key type %q", scheme)
	}
}

type junction struct {
	raw       string
	hard      bool
	chainCode [32]byte
}

func parseURI(uri string) (phrase string, junctions []junction, password string, err error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", nil, "", fmt.Errorf("seed is empty")
	}

	if idx := strings.Index(uri, "///"); idx >= 0 {
		password = uri[idx+3:]
		uri = uri[:idx]
	}

	path := ""
	if idx := strings.Index(uri, "/"); idx >= 0 {
		path = uri[idx:]
		uri = uri[:idx]
	}
	phrase = strings.Join(strings.Fields(uri), " ")
	if phrase == "" {
		phrase = DevPhrase
	}

	for path != "" {
		hard := strings.HasPrefix(path, "//")
		if hard {
			path = path[2:]
		} else {
			path = path[1:]
		}
		raw := path
		if next := strings.Index(path, "/"); next >= 0 {
			raw = path[:next]
			path = path[next:]
		} else {
			path = ""
		}
		if raw == "" {
			return "", nil, "", fmt.Errorf("empty derivation junction")
		}
		junctions = append(junctions, junction{raw: raw, hard: hard, chainCode: chainCode(raw)})
	}

	return phrase, junctions, password, nil
}

func chainCode(raw string) [32]byte {
	var cc [32]byte
	var enc []byte
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		enc = scale.EncodeU64(n)
	} else {
		enc = scale.NewEncoder().Str(raw).Bytes()
	}
	if len(enc) > 32 {
		return blake2b.Sum256(enc)
	}
	copy(cc[:], enc)
	return cc
}
