// Package account resolves the signing keypairs configured for the SDK.
package account

import (
	"strings"

	"taostats/internal/keyring"
	"taostats/internal/sdkerr"
)

// Config holds the key material. Seed wins over PrivateKey when both are
// set and an empty Scheme means sr25519.
type Config struct {
	Seed       string
	PrivateKey string
	ProxySeed  string
	Scheme     keyring.Scheme
}

// Pair is the primary keypair and the optional proxy used for transfers.
type Pair struct {
	Primary *keyring.Keypair
	Proxy   *keyring.Keypair
}

// Resolve builds the keypairs of cfg. A non-empty from must equal the
// primary address.
func Resolve(cfg Config, from string) (Pair, error) {
	const op = "resolve account"
	if cfg.Scheme == "" {
		cfg.Scheme = keyring.Sr25519
	}
	primary, err := build(op, cfg.Seed, cfg.PrivateKey, cfg.Scheme)
	if err != nil {
		return Pair{}, err
	}
	from = strings.TrimSpace(from)
	if from != "" && from != primary.Address() {
		return Pair{}, sdkerr.New(sdkerr.KindAccountMismatch, op,
			"source address %s does not match configured account %s", from, primary.Address())
	}

	pair := Pair{Primary: primary}
	if strings.TrimSpace(cfg.ProxySeed) != "" {
		proxy, err := keyring.FromSeed(cfg.ProxySeed, cfg.Scheme)
		if err != nil {
			return Pair{}, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "create proxy account")
		}
		pair.Proxy = proxy
	}
	return pair, nil
}

// Primary is Resolve without a proxy, for callers that only sign.
func Primary(cfg Config, from string) (*keyring.Keypair, error) {
	cfg.ProxySeed = ""
	pair, err := Resolve(cfg, from)
	if err != nil {
		return nil, err
	}
	return pair.Primary, nil
}

func build(op, seed, privateKey string, scheme keyring.Scheme) (*keyring.Keypair, error) {
	seed, privateKey = strings.TrimSpace(seed), strings.TrimSpace(privateKey)
	switch {
	case seed != "":
		kp, err := keyring.FromSeed(seed, scheme)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "create account from seed")
		}
		return kp, nil
	case privateKey != "":
		kp, err := keyring.FromPrivateKey(privateKey, scheme)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "create account from private key")
		}
		return kp, nil
	default:
		return nil, sdkerr.New(sdkerr.KindConfiguration, op, "either a seed phrase or a private key must be provided")
	}
}
