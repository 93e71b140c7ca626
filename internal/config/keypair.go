package config

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

var ErrInvalidKeypair = errors.New("invalid keypair")

// Keypair is the relay's signing key. Only the public half is ever printed.
type Keypair struct {
	key solana.PrivateKey
}

// ParseKeypair accepts a base58 secret key, a JSON byte array as written by
// solana-keygen, or the path of such a file.
func ParseKeypair(raw string) (Keypair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Keypair{}, fmt.Errorf("%w: empty", ErrInvalidKeypair)
	}

	if strings.HasPrefix(raw, "[") {
		return parseKeypairJSON([]byte(raw))
	}

	if info, err := os.Stat(raw); err == nil && !info.IsDir() {
		data, err := os.ReadFile(raw)
		if err != nil {
			return Keypair{}, fmt.Errorf("read keypair file: %w", err)
		}
		return parseKeypairJSON(bytes.TrimSpace(data))
	}

	key, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	return newKeypair(key)
}

func parseKeypairJSON(data []byte) (Keypair, error) {
	var ints []int
	if err := sonic.Unmarshal(data, &ints); err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	key := make(solana.PrivateKey, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
		}
		key[i] = byte(v)
	}
	return newKeypair(key)
}

func newKeypair(key solana.PrivateKey) (Keypair, error) {
	if len(key) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("%w: %d bytes", ErrInvalidKeypair, len(key))
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived, key) {
		return Keypair{}, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeypair)
	}
	return Keypair{key: key}, nil
}

func (k Keypair) PrivateKey() solana.PrivateKey {
	return k.key
}

func (k Keypair) PublicKey() solana.PublicKey {
	if len(k.key) == 0 {
		return solana.PublicKey{}
	}
	return k.key.PublicKey()
}

func (k Keypair) IsZero() bool {
	return len(k.key) == 0
}

func (k Keypair) String() string {
	return k.PublicKey().String()
}

func (k Keypair) MarshalZerologObject(e *zerolog.Event) {
	e.Str("pubkey", k.PublicKey().String())
}
