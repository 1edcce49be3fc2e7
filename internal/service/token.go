package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

const tokenBytes = 32

// NewToken returns a 256-bit random token encoded as unpadded base64url.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenHasher derives the stored form of a token. Only hashes are persisted,
// so a leaked table does not yield working links.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher builds a keyed BLAKE2b-256 hasher from pepper.
func NewTokenHasher(pepper string) (*TokenHasher, error) {
	if pepper == "" {
		return nil, errors.New("empty token pepper")
	}
	key := blake2b.Sum256([]byte(pepper))
	return &TokenHasher{key: key[:]}, nil
}

// Hash returns the hex encoded keyed hash of token.
func (h *TokenHasher) Hash(token string) string {
	m, err := blake2b.New256(h.key)
	if err != nil {
		// Only possible for keys longer than 64 bytes.
		panic(err)
	}
	m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}
