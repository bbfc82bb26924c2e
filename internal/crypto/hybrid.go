package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// Sealed values are stored as enc:<version>:<payload> so a future algorithm
// change is distinguishable from legacy rows.
const (
	tokenPrefix  = "enc:"
	tokenVersion = "v1"
)

// GenerateKeypair returns a fresh curve25519 keypair for hybrid sealing.
func GenerateKeypair() (pub, priv []byte, err error) {
	pubKey, privKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pubKey[:], privKey[:], nil
}

// SealHybrid encrypts plaintext to the public key as an anonymous sealed
// box: an ephemeral key encrypts the payload and is itself sealed to the
// recipient, so payload size is unconstrained by the asymmetric layer.
func SealHybrid(plaintext string, pub []byte) (string, error) {
	pubKey, err := toKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSeal, err)
	}
	sealed, err := box.SealAnonymous(nil, []byte(plaintext), pubKey, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSeal, err)
	}
	return tokenPrefix + tokenVersion + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// UnsealHybrid opens a sealed token with the private key. Unknown versions
// fail with ErrMalformedToken; wrong keys and tampering fail with ErrUnseal.
func UnsealHybrid(token string, priv []byte) (string, error) {
	payload, err := splitToken(token)
	if err != nil {
		return "", err
	}
	privKey, err := toKey(priv)
	if err != nil {
		return "", err
	}
	var pubKey [32]byte
	curve25519.ScalarBaseMult(&pubKey, privKey)

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrMalformedToken
	}
	plaintext, ok := box.OpenAnonymous(nil, sealed, &pubKey, privKey)
	if !ok {
		return "", ErrUnseal
	}
	return string(plaintext), nil
}

// IsSealed reports whether a stored value carries the sealed-token prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}

func splitToken(token string) (string, error) {
	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return "", ErrMalformedToken
	}
	version, payload, ok := strings.Cut(rest, ":")
	if !ok || version != tokenVersion {
		return "", ErrMalformedToken
	}
	return payload, nil
}

func toKey(b []byte) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("bad key length %d", len(b))
	}
	var key [32]byte
	copy(key[:], b)
	return &key, nil
}
