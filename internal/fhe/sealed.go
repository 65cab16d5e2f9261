// Package fhe provides the encrypted-accumulator backends. The ledger treats
// tally handles as opaque bytes supporting a single homomorphic operation,
// combine; what a handle actually is depends on the configured backend.
//
// Sealed is the local backend: handles are AEAD-sealed uint64 counters under
// a key shared with the simulated oracle. It stands in for a real FHE
// coprocessor in sim mode and in tests, where the request/callback round trip
// still behaves exactly like the production bridge.
package fhe

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Sealed is an additively homomorphic cipher over uint64 values, implemented
// as decrypt-add-reencrypt under a local AEAD key. Proofs are the AEAD tag
// itself: a handle that does not open under the key is rejected.
type Sealed struct {
	key []byte
}

// NewSealed derives a Sealed backend from an arbitrary secret string.
func NewSealed(secret string) *Sealed {
	sum := sha256.Sum256([]byte("beliefd-sealed-tally:" + secret))
	return &Sealed{key: sum[:]}
}

// EncryptUint64 seals v into a fresh handle. Used by the sim voter tooling
// and tests; production clients encrypt on their own side.
func (s *Sealed) EncryptUint64(v uint64) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("fhe: new aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fhe: nonce: %w", err)
	}

	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], v)

	return aead.Seal(nonce, nonce, plain[:], nil), nil
}

// Open decrypts a handle back to its uint64 value. Only the oracle side of
// the bridge ever calls this; an empty handle is the zero accumulator.
func (s *Sealed) Open(handle []byte) (uint64, error) {
	if len(handle) == 0 {
		return 0, nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return 0, fmt.Errorf("fhe: new aead: %w", err)
	}
	if len(handle) < aead.NonceSize() {
		return 0, domain.ErrInvalidCiphertext
	}

	nonce, sealed := handle[:aead.NonceSize()], handle[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, domain.ErrInvalidCiphertext
	}
	if len(plain) != 8 {
		return 0, domain.ErrInvalidCiphertext
	}
	return binary.BigEndian.Uint64(plain), nil
}

// Add combines two handles into a new accumulator handle.
func (s *Sealed) Add(ctx context.Context, acc, handle []byte) ([]byte, error) {
	a, err := s.Open(acc)
	if err != nil {
		return nil, err
	}
	b, err := s.Open(handle)
	if err != nil {
		return nil, err
	}
	return s.EncryptUint64(a + b)
}

// VerifyInput checks the handle opens under the backend key. The proof
// parameter is unused here; the AEAD tag is the proof.
func (s *Sealed) VerifyInput(ctx context.Context, handle, proof []byte) error {
	if len(handle) == 0 {
		return domain.ErrInvalidCiphertext
	}
	_, err := s.Open(handle)
	return err
}

// Compile-time interface check.
var _ domain.Cipher = (*Sealed)(nil)
