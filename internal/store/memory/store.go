// Package memory implements domain.LedgerStore entirely in memory. It backs
// sim mode and unit tests; transactions stage a copy of the state and swap it
// in on commit, so a failed operation leaves nothing behind, matching the
// postgres store's semantics.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Store is an in-memory ledger store. Safe for concurrent use; ExecTx
// serializes all writers.
type Store struct {
	mu sync.RWMutex
	st state
}

type state struct {
	markets  map[string]domain.Market
	order    []string
	votes    map[string]domain.Vote
	claims   map[string]domain.Claim
	treasury domain.Treasury
	audit    []domain.AuditEntry
}

func voteKey(marketID, voter string) string { return marketID + "\x00" + voter }

// New creates an empty Store with the given initial platform stake.
func New(platformStake uint64) *Store {
	return &Store{
		st: state{
			markets:  make(map[string]domain.Market),
			votes:    make(map[string]domain.Vote),
			claims:   make(map[string]domain.Claim),
			treasury: domain.Treasury{PlatformStake: platformStake},
		},
	}
}

// clone copies the state. Map values are plain structs; the ledger never
// mutates stored byte slices in place, so value copies are sufficient.
func (s state) clone() state {
	cp := state{
		markets:  make(map[string]domain.Market, len(s.markets)),
		order:    append([]string(nil), s.order...),
		votes:    make(map[string]domain.Vote, len(s.votes)),
		claims:   make(map[string]domain.Claim, len(s.claims)),
		treasury: s.treasury,
		audit:    append([]domain.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.markets {
		cp.markets[k] = v
	}
	for k, v := range s.votes {
		cp.votes[k] = v
	}
	for k, v := range s.claims {
		cp.claims[k] = v
	}
	return cp
}

// ExecTx runs fn against a staged copy of the state and commits it only when
// fn succeeds.
func (s *Store) ExecTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&memTx{st: &staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// GetMarket returns a market by ID.
func (s *Store) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// MarketIDs returns all market IDs in creation order.
func (s *Store) MarketIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.st.order...), nil
}

// CountMarkets returns the number of markets.
func (s *Store) CountMarkets(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.st.markets)), nil
}

// HasVoted reports whether a vote row exists.
func (s *Store) HasVoted(ctx context.Context, marketID, voter string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.votes[voteKey(marketID, voter)]
	return ok, nil
}

// HasClaimed reports whether a claim row exists.
func (s *Store) HasClaimed(ctx context.Context, marketID, voter string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.claims[voteKey(marketID, voter)]
	return ok, nil
}

// GetTreasury returns the treasury record.
func (s *Store) GetTreasury(ctx context.Context) (domain.Treasury, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.treasury, nil
}

// ListClaims returns all claims recorded for a market.
func (s *Store) ListClaims(ctx context.Context, marketID string) ([]domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var claims []domain.Claim
	for _, c := range s.st.claims {
		if c.MarketID == marketID {
			claims = append(claims, c)
		}
	}
	return claims, nil
}

// ListAudit returns audit entries with ID greater than sinceID.
func (s *Store) ListAudit(ctx context.Context, sinceID int64, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range s.st.audit {
		if e.ID <= sinceID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// memTx applies mutations to the staged state.
type memTx struct {
	st *state
}

func (t *memTx) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, ok := t.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (t *memTx) InsertMarket(ctx context.Context, m domain.Market) error {
	t.st.markets[m.ID] = m
	t.st.order = append(t.st.order, m.ID)
	return nil
}

func (t *memTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	if _, ok := t.st.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	t.st.markets[m.ID] = m
	return nil
}

func (t *memTx) MarketByRequestID(ctx context.Context, requestID string) (domain.Market, error) {
	if requestID == "" {
		return domain.Market{}, domain.ErrNotFound
	}
	for _, m := range t.st.markets {
		if m.DecryptionRequestID == requestID {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (t *memTx) GetVote(ctx context.Context, marketID, voter string) (domain.Vote, error) {
	v, ok := t.st.votes[voteKey(marketID, voter)]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return v, nil
}

func (t *memTx) InsertVote(ctx context.Context, v domain.Vote) error {
	t.st.votes[voteKey(v.MarketID, v.Voter)] = v
	return nil
}

func (t *memTx) HasClaimed(ctx context.Context, marketID, voter string) (bool, error) {
	_, ok := t.st.claims[voteKey(marketID, voter)]
	return ok, nil
}

func (t *memTx) InsertClaim(ctx context.Context, c domain.Claim) error {
	t.st.claims[voteKey(c.MarketID, c.Voter)] = c
	return nil
}

func (t *memTx) GetTreasury(ctx context.Context) (domain.Treasury, error) {
	return t.st.treasury, nil
}

func (t *memTx) SetTreasury(ctx context.Context, tr domain.Treasury) error {
	t.st.treasury = tr
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, event string, detail map[string]any) error {
	t.st.audit = append(t.st.audit, domain.AuditEntry{
		ID:        int64(len(t.st.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore = (*Store)(nil)
	_ domain.AuditReader = (*Store)(nil)
	_ domain.LedgerTx    = (*memTx)(nil)
)
