package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/fhe"
)

// CallbackHandler receives signed reveal callbacks.
type CallbackHandler func(ctx context.Context, cb Callback) error

// Sim is an in-process decryption oracle for development and tests. It holds
// the sealing key, opens submitted accumulators, and delivers a signed
// callback after a configurable delay, mimicking the asynchronous round trip
// of the real service.
type Sim struct {
	backend *fhe.Sealed
	signer  *CallbackSigner
	delay   time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	handler CallbackHandler
	wg      sync.WaitGroup
}

// NewSim creates a simulator around the given sealing backend and signing key.
func NewSim(backend *fhe.Sealed, signer *CallbackSigner, delay time.Duration, logger *slog.Logger) *Sim {
	return &Sim{
		backend: backend,
		signer:  signer,
		delay:   delay,
		logger:  logger.With(slog.String("component", "oracle_sim")),
	}
}

// SetHandler installs the callback destination. Set once during wiring; the
// simulator and its consumer reference each other, so this breaks the cycle.
func (s *Sim) SetHandler(h CallbackHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// RequestDecryption opens both accumulators immediately but delivers the
// signed result asynchronously, after the configured delay.
func (s *Sim) RequestDecryption(ctx context.Context, requestID, marketID string, yesHandle, noHandle []byte) error {
	yes, err := s.backend.Open(yesHandle)
	if err != nil {
		return fmt.Errorf("oracle: open yes accumulator for %s: %w", marketID, err)
	}
	no, err := s.backend.Open(noHandle)
	if err != nil {
		return fmt.Errorf("oracle: open no accumulator for %s: %w", marketID, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		s.deliver(requestID, marketID, yes, no)
	}()

	return nil
}

func (s *Sim) deliver(requestID, marketID string, yes, no uint64) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		s.logger.Error("no callback handler installed", slog.String("request_id", requestID))
		return
	}

	sig, err := s.signer.Sign(requestID, yes, no)
	if err != nil {
		s.logger.Error("sign callback", slog.String("request_id", requestID), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = handler(ctx, Callback{RequestID: requestID, Yes: yes, No: no, Signature: sig})
	if err != nil {
		s.logger.Error("deliver callback",
			slog.String("request_id", requestID),
			slog.String("market_id", marketID),
			slog.Any("error", err))
		return
	}
	s.logger.Info("reveal delivered",
		slog.String("request_id", requestID),
		slog.String("market_id", marketID),
		slog.Uint64("yes", yes),
		slog.Uint64("no", no))
}

// Wait blocks until all in-flight callbacks have been delivered.
func (s *Sim) Wait() {
	s.wg.Wait()
}

// Compile-time interface check.
var _ domain.DecryptionGateway = (*Sim)(nil)
