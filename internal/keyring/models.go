// Package keyring manages the envelope-encryption chain:
// password → KEK → data key → private key → sealed PII.
//
// The chain exists so a password rotation rewraps one small key instead of
// re-sealing every attendee record: O(1) rotation over an O(n) dataset.
package keyring

import "time"

// Credential is one admin's login material. The plaintext password is never
// stored; the verifier proves knowledge and its digest derives the KEK.
type Credential struct {
	ID               string
	Username         string
	PasswordVerifier string
	WrappedDataKey   []byte
	SetupComplete    bool
	Created          time.Time
}

// Keys is the process-wide key material. The public key is safe to expose;
// the private key only ever exists unwrapped inside a single request.
type Keys struct {
	PublicKey         []byte
	WrappedPrivateKey []byte
}

// DataKey is the unwrapped symmetric key. It is request-scoped: obtained by
// an unwrap at the start of an authenticated operation, passed explicitly,
// and discarded at request end. Never cache or persist one.
type DataKey []byte
