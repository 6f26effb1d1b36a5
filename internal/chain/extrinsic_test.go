package chain

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"taostats/internal/keyring"
	"taostats/internal/scale"
)

func testSigner(t *testing.T) *keyring.Keypair {
	t.Helper()
	kp, err := keyring.FromPrivateKey("0x"+common.Bytes2Hex(bytes.Repeat([]byte{7}, 32)), keyring.Ed25519)
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	return kp
}

func TestMortalEraEncoding(t *testing.T) {
	got := encodeMortalEra(64, 42)
	if !bytes.Equal(got, []byte{0xa5, 0x02}) {
		t.Fatalf("era(64, 42) = %x", got)
	}
	// non power of two periods round up
	if !bytes.Equal(encodeMortalEra(50, 42), got) {
		t.Fatalf("period 50 should encode like 64")
	}
}

func TestBuildSignedLayout(t *testing.T) {
	signer := testSigner(t)
	call := Call{Module: "Balances", Name: "transfer_keep_alive", Index: [2]byte{5, 3}, Args: []byte{0xde, 0xad}}
	opts := SignOptions{
		Genesis:     common.HexToHash("0x01"),
		SpecVersion: 200,
		TxVersion:   1,
		Nonce:       3,
		Period:      64,
		BirthNumber: 42,
		BirthHash:   common.HexToHash("0x02"),
	}

	ext, err := BuildSigned(call, signer, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := scale.NewDecoder(ext)
	length, err := d.Compact()
	if err != nil || int(length.Int64()) != d.Remaining() {
		t.Fatalf("length prefix mismatch: %v (%v), remaining %d", length, err, d.Remaining())
	}
	body, _ := d.Bytes(d.Remaining())
	if body[0] != 0x84 || body[1] != 0x00 {
		t.Fatalf("unexpected version/address bytes %x", body[:2])
	}
	pub := signer.PublicKey()
	if !bytes.Equal(body[2:34], pub[:]) {
		t.Fatalf("signer public key not embedded")
	}
	if body[34] != 0x00 {
		t.Fatalf("expected ed25519 signature variant, got %d", body[34])
	}
	sig := body[35:99]
	extra := body[99 : len(body)-len(call.Encode())]
	if !bytes.Equal(extra, []byte{0xa5, 0x02, 0x0c, 0x00}) {
		t.Fatalf("unexpected extra %x", extra)
	}
	if !bytes.HasSuffix(body, call.Encode()) {
		t.Fatalf("call must close the extrinsic")
	}

	payload := append(append(call.Encode(), extra...),
		scale.NewEncoder().U32(200).U32(1).Raw(opts.Genesis.Bytes()).Raw(opts.BirthHash.Bytes()).Bytes()...)
	if !ed25519.Verify(pub[:], payload, sig) {
		t.Fatalf("signature does not verify against the signing payload")
	}
}

func TestBuildSignedMetadataHashExtension(t *testing.T) {
	signer := testSigner(t)
	call := Call{Index: [2]byte{7, 2}}
	plain, err := BuildSigned(call, signer, SignOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withHash, err := BuildSigned(call, signer, SignOptions{MetadataHash: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(withHash) != len(plain)+1 {
		t.Fatalf("metadata hash mode byte missing: %d vs %d", len(withHash), len(plain))
	}
}

func TestExtrinsicHashIsStable(t *testing.T) {
	a := ExtrinsicHash([]byte{1, 2, 3})
	b := ExtrinsicHash([]byte{1, 2, 3})
	if a != b || a == (common.Hash{}) {
		t.Fatalf("unexpected hashes %s %s", a, b)
	}
}
