package database

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrNoKey   = errors.New("database: session secret not loaded")
	ErrBadSeal = errors.New("database: sealed token is corrupt")
)

const nonceSize = 24

func sealKey(secret string) *[32]byte {
	k := sha256.Sum256([]byte("isotope api token\x00" + secret))
	return &k
}

// seal encrypts an API token for storage. The nonce is prepended.
func seal(key *[32]byte, token string) ([]byte, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("database: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, key), nil
}

func unseal(key *[32]byte, box []byte) (string, error) {
	if key == nil {
		return "", ErrNoKey
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return "", ErrBadSeal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrBadSeal
	}
	return string(out), nil
}

// tokenHash lets sessions be looked up by API token without storing it in
// the clear.
func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
