package fhe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beliefmarket/beliefd/internal/domain"
)

func TestSealedRoundTrip(t *testing.T) {
	s := NewSealed("test-secret")

	h, err := s.EncryptUint64(42)
	require.NoError(t, err)

	v, err := s.Open(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestSealedAdd(t *testing.T) {
	ctx := context.Background()
	s := NewSealed("test-secret")

	t.Run("empty accumulator is zero", func(t *testing.T) {
		one, err := s.EncryptUint64(1)
		require.NoError(t, err)

		acc, err := s.Add(ctx, nil, one)
		require.NoError(t, err)

		v, err := s.Open(acc)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v)
	})

	t.Run("accumulates across combines", func(t *testing.T) {
		var acc []byte
		for i := 0; i < 5; i++ {
			one, err := s.EncryptUint64(1)
			require.NoError(t, err)
			acc, err = s.Add(ctx, acc, one)
			require.NoError(t, err)
		}

		v, err := s.Open(acc)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), v)
	})
}

func TestSealedRejectsForeignHandles(t *testing.T) {
	ctx := context.Background()
	a := NewSealed("key-a")
	b := NewSealed("key-b")

	h, err := a.EncryptUint64(7)
	require.NoError(t, err)

	_, err = b.Open(h)
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)

	err = b.VerifyInput(ctx, h, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)

	err = b.VerifyInput(ctx, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)

	err = b.VerifyInput(ctx, []byte("short"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)
}
