// Package oracle bridges the ledger to the external decryption service: an
// HTTP gateway for submitting ciphertext accumulators, ECDSA authentication
// of reveal callbacks, and an in-process simulator for development.
package oracle

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Callback is one reveal delivery from the decryption oracle. The signature
// covers the correlation token and both plaintext totals, so a callback can
// neither be forged nor replayed against a different request.
type Callback struct {
	RequestID string `json:"requestId"`
	Yes       uint64 `json:"yes"`
	No        uint64 `json:"no"`
	Signature []byte `json:"signature"`
}

// callbackDigest hashes the signed portion of a callback with the standard
// Ethereum signed-message prefix.
func callbackDigest(requestID string, yes, no uint64) []byte {
	msg := fmt.Sprintf("%s:%d:%d", requestID, yes, no)
	return accounts.TextHash([]byte(msg))
}

// CallbackVerifier checks that reveal callbacks were signed by the oracle's
// published signing key.
type CallbackVerifier struct {
	signer string
}

// NewCallbackVerifier creates a verifier pinned to the given signer address.
func NewCallbackVerifier(signerAddress string) (*CallbackVerifier, error) {
	norm, err := domain.NormalizeAddress(signerAddress)
	if err != nil {
		return nil, fmt.Errorf("oracle: signer address: %w", err)
	}
	return &CallbackVerifier{signer: norm}, nil
}

// Verify recovers the signer from the callback signature and compares it to
// the pinned oracle address. Returns ErrBadSignature on any mismatch.
func (v *CallbackVerifier) Verify(cb Callback) error {
	if len(cb.Signature) != 65 {
		return domain.ErrBadSignature
	}

	sig := make([]byte, 65)
	copy(sig, cb.Signature)
	// Accept both raw 0/1 and legacy 27/28 recovery IDs.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(callbackDigest(cb.RequestID, cb.Yes, cb.No), sig)
	if err != nil {
		return domain.ErrBadSignature
	}

	recovered, err := domain.NormalizeAddress(crypto.PubkeyToAddress(*pub).Hex())
	if err != nil || recovered != v.signer {
		return domain.ErrBadSignature
	}
	return nil
}

// CallbackSigner signs reveal callbacks. Used by the simulator; a production
// oracle holds its own key.
type CallbackSigner struct {
	key *ecdsa.PrivateKey
}

// NewCallbackSigner wraps an ECDSA private key.
func NewCallbackSigner(key *ecdsa.PrivateKey) *CallbackSigner {
	return &CallbackSigner{key: key}
}

// Address returns the signer's Ethereum address in normalized form.
func (s *CallbackSigner) Address() string {
	addr, _ := domain.NormalizeAddress(crypto.PubkeyToAddress(s.key.PublicKey).Hex())
	return addr
}

// Sign produces a 65-byte signature over the callback fields.
func (s *CallbackSigner) Sign(requestID string, yes, no uint64) ([]byte, error) {
	sig, err := crypto.Sign(callbackDigest(requestID, yes, no), s.key)
	if err != nil {
		return nil, fmt.Errorf("oracle: sign callback %s: %w", requestID, err)
	}
	return sig, nil
}
