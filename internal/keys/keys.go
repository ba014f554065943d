// Package keys manages the Nacl key pairs peers use to authenticate
// their envelopes.
package keys

import (
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"udpchain/internal/codec"
)

// Size is the byte length of a Nacl public or secret key.
const Size = 32

// Pair is a Nacl box key pair.
type Pair struct {
	Public *[Size]byte
	Secret *[Size]byte
}

// Generate creates a fresh random key pair.
func Generate() (Pair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Pair{}, fmt.Errorf("generating key pair: %w", err)
	}
	return Pair{Public: pub, Secret: sec}, nil
}

// PublicHex renders the public key as upper-case hex.
func (p Pair) PublicHex() string { return codec.ToHex(p.Public[:]) }

// SecretHex renders the secret key as upper-case hex.
func (p Pair) SecretHex() string { return codec.ToHex(p.Secret[:]) }

// DecodeKey parses a hex-encoded key into a fixed-size array.
func DecodeKey(hexStr string) (*[Size]byte, error) {
	raw, err := codec.FromHex(hexStr)
	if err != nil {
		return nil, err
	}
	if len(raw) != Size {
		return nil, fmt.Errorf("key must be %d bytes, got %d", Size, len(raw))
	}
	var out [Size]byte
	copy(out[:], raw)
	return &out, nil
}

// PublicFromSecret derives the Curve25519 public key matching secret, for
// the CLI's `pubkey <secret>` subcommand (it never stores a secret key
// without also knowing its public half, but an operator handed only the
// secret still needs a way to recover it).
func PublicFromSecret(secret *[Size]byte) (*[Size]byte, error) {
	var public [Size]byte
	curve25519.ScalarBaseMult(&public, secret)
	return &public, nil
}

// WriteFiles writes the public and secret keys as hex to two files
// (perm 0600 for the secret key, since it must stay private).
func (p Pair) WriteFiles(publicPath, secretPath string) error {
	if err := os.WriteFile(publicPath, []byte(p.PublicHex()), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if err := os.WriteFile(secretPath, []byte(p.SecretHex()), 0o600); err != nil {
		return fmt.Errorf("writing secret key: %w", err)
	}
	return nil
}
