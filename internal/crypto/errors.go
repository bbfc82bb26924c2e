package crypto

import "errors"

// Failure kinds are distinct so callers can branch without string matching.
// None of the primitives ever return zeroed or partial output alongside a
// nil error.
var (
	// ErrVerify means the password did not match the verifier. Callers must
	// not surface anything more specific (oracle hardening happens one layer
	// up, in the keyring).
	ErrVerify = errors.New("crypto: password verification failed")

	// ErrMalformedVerifier means the stored verifier could not be parsed.
	ErrMalformedVerifier = errors.New("crypto: malformed password verifier")

	// ErrUnwrap means authenticated unwrapping failed: wrong key or tampered
	// ciphertext. The two cases are deliberately indistinguishable.
	ErrUnwrap = errors.New("crypto: key unwrap failed")

	// ErrSeal means a value could not be sealed to the public key. The
	// usual cause is corrupt stored key material, which must surface as an
	// encryption failure rather than a generic error.
	ErrSeal = errors.New("crypto: seal failed")

	// ErrUnseal means a hybrid-sealed token could not be opened.
	ErrUnseal = errors.New("crypto: unseal failed")

	// ErrMalformedToken means a sealed value is missing the enc:<version>
	// prefix or carries an unknown version.
	ErrMalformedToken = errors.New("crypto: malformed sealed token")
)
