package domain

import (
	"context"
	"time"
)

// DecryptionGateway submits ciphertext accumulators to the external
// decryption oracle. The caller mints the correlation token and persists it
// before submitting, so a callback can never arrive ahead of the token it
// must match; the reveal itself arrives later as an independent callback and
// the gateway never blocks waiting for it.
type DecryptionGateway interface {
	RequestDecryption(ctx context.Context, requestID, marketID string, yesHandle, noHandle []byte) error
}

// Cipher combines opaque ciphertext handles homomorphically. The ledger
// only ever combines and forwards handles; decryption lives on the oracle
// side of the trust boundary.
type Cipher interface {
	// Add combines two handles into a new accumulator handle. An empty
	// first operand is the zero accumulator.
	Add(ctx context.Context, acc, handle []byte) ([]byte, error)

	// VerifyInput checks that handle is a well-formed ciphertext with a
	// valid correctness proof. Returns ErrInvalidCiphertext otherwise.
	VerifyInput(ctx context.Context, handle, proof []byte) error
}

// MarketCache is a read cache for market records keyed by market ID.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// EventBus publishes committed ledger events to external consumers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
}

// RateLimiter limits operations per key within a time window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
