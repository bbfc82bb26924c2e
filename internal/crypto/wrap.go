package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyLen = 32

// kekInfo pins the KEK derivation context; changing it would orphan every
// wrapped data key.
var kekInfo = []byte("ticketeer/kek/v1")

// sessionKekInfo keeps session-token KEKs in a separate derivation domain
// from password KEKs.
var sessionKekInfo = []byte("ticketeer/session-kek/v1")

// NewKey returns a fresh random 256-bit symmetric key.
func NewKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DeriveKEK deterministically derives the key-encrypting key from a password
// digest. The same artifact always yields the same KEK, which is what lets a
// later login unwrap the data key.
func DeriveKEK(artifact []byte) ([]byte, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("derive kek: empty artifact")
	}
	kek := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, artifact, nil, kekInfo), kek); err != nil {
		return nil, fmt.Errorf("derive kek: %w", err)
	}
	return kek, nil
}

// DeriveSessionKEK derives a wrapping key from a raw bearer token. The
// server stores only the token's hash, so once the response leaves the
// process nothing on disk can reproduce this key.
func DeriveSessionKEK(rawToken string) ([]byte, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("derive session kek: empty token")
	}
	kek := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(rawToken), nil, sessionKekInfo), kek); err != nil {
		return nil, fmt.Errorf("derive session kek: %w", err)
	}
	return kek, nil
}

// Wrap seals key under kek with AES-256-GCM. The random nonce is prepended
// to the ciphertext.
func Wrap(key, kek []byte) ([]byte, error) {
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, key, nil), nil
}

// Unwrap reverses Wrap. It fails closed with ErrUnwrap on a wrong key or
// tampered blob; it never returns garbage plaintext.
func Unwrap(blob, kek []byte) ([]byte, error) {
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize() {
		return nil, ErrUnwrap
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	return key, nil
}

func newGCM(kek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}
