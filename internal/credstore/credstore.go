package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrBadKey    = errors.New("credstore: key must be 32 hex-encoded bytes")
	ErrCorrupted = errors.New("credstore: sealed credential is corrupted or key mismatch")
)

// Keeper seals provider credentials so only the sealed reference is stored
// in mail_accounts.credentials_ref.
type Keeper struct {
	key [32]byte
}

func New(hexKey string) (*Keeper, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrBadKey
	}
	k := &Keeper{}
	copy(k.key[:], raw)
	return k, nil
}

// Seal encrypts the plaintext credential and returns a base64 reference.
// Layout: nonce (24 bytes) followed by the secretbox ciphertext.
func (k *Keeper) Seal(plaintext []byte) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("credstore: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &k.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a reference produced by Seal.
func (k *Keeper) Open(ref string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(ref)
	if err != nil || len(sealed) < 24+secretbox.Overhead {
		return nil, ErrCorrupted
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &k.key)
	if !ok {
		return nil, ErrCorrupted
	}
	return plaintext, nil
}
