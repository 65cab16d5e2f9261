package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// querier is the query surface shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.LedgerStore backed by PostgreSQL. Atomicity of
// ledger operations maps directly onto database transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ domain.LedgerStore = (*Store)(nil)
	_ domain.AuditReader = (*Store)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)

// EnsureTreasury seeds the singleton treasury row on first startup. An
// existing row is left untouched so restarts never reset the balance.
func (s *Store) EnsureTreasury(ctx context.Context, platformStake uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO treasury (id, balance, platform_stake)
		VALUES (1, 0, $1)
		ON CONFLICT (id) DO NOTHING`,
		int64(platformStake),
	)
	if err != nil {
		return fmt.Errorf("postgres: seed treasury: %w", err)
	}
	return nil
}

// ExecTx runs fn inside a database transaction. Errors from fn are returned
// unwrapped so callers can match sentinel errors.
func (s *Store) ExecTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&ledgerTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

const marketCols = `id, creator, creation_stake, vote_stake, expiry_time,
	resolved, encrypted_yes, encrypted_no, revealed_yes, revealed_no,
	prize_pool, yes_won, yes_voters, no_voters, decryption_request_id,
	created_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                        domain.Market
		creationStake, voteStake int64
		revealedYes, revealedNo  int64
		prizePool                int64
		yesVoters, noVoters      int32
	)
	err := row.Scan(
		&m.ID, &m.Creator, &creationStake, &voteStake, &m.ExpiryTime,
		&m.Resolved, &m.EncryptedYes, &m.EncryptedNo, &revealedYes, &revealedNo,
		&prizePool, &m.YesWon, &yesVoters, &noVoters, &m.DecryptionRequestID,
		&m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.CreationStake = uint64(creationStake)
	m.VoteStake = uint64(voteStake)
	m.RevealedYes = uint64(revealedYes)
	m.RevealedNo = uint64(revealedNo)
	m.PrizePool = uint64(prizePool)
	m.YesVoters = uint32(yesVoters)
	m.NoVoters = uint32(noVoters)
	return m, nil
}

func getMarket(ctx context.Context, q querier, id string) (domain.Market, error) {
	row := q.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

func getTreasury(ctx context.Context, q querier) (domain.Treasury, error) {
	var balance, stake int64
	err := q.QueryRow(ctx,
		`SELECT balance, platform_stake FROM treasury WHERE id = 1`,
	).Scan(&balance, &stake)
	if err != nil {
		return domain.Treasury{}, fmt.Errorf("postgres: get treasury: %w", err)
	}
	return domain.Treasury{Balance: uint64(balance), PlatformStake: uint64(stake)}, nil
}

func hasClaimed(ctx context.Context, q querier, marketID, voter string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE market_id = $1 AND voter = $2)`,
		marketID, voter,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check claim %s/%s: %w", marketID, voter, err)
	}
	return exists, nil
}

// GetMarket retrieves a market by ID.
func (s *Store) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, s.pool, id)
}

// MarketIDs returns every market identifier in creation order.
func (s *Store) MarketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM markets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list market ids rows: %w", err)
	}
	return ids, nil
}

// CountMarkets returns the total number of markets ever created.
func (s *Store) CountMarkets(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// HasVoted reports whether the voter has a recorded vote on the market.
func (s *Store) HasVoted(ctx context.Context, marketID, voter string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE market_id = $1 AND voter = $2)`,
		marketID, voter,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check vote %s/%s: %w", marketID, voter, err)
	}
	return exists, nil
}

// HasClaimed reports whether the voter has already withdrawn for the market.
func (s *Store) HasClaimed(ctx context.Context, marketID, voter string) (bool, error) {
	return hasClaimed(ctx, s.pool, marketID, voter)
}

// GetTreasury returns the singleton treasury row.
func (s *Store) GetTreasury(ctx context.Context) (domain.Treasury, error) {
	return getTreasury(ctx, s.pool)
}

// ListClaims returns all recorded claims for a market, oldest first.
func (s *Store) ListClaims(ctx context.Context, marketID string) ([]domain.Claim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, voter, kind, amount, claimed_at
		FROM claims
		WHERE market_id = $1
		ORDER BY claimed_at`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims %s: %w", marketID, err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var (
			c      domain.Claim
			kind   string
			amount int64
		)
		if err := rows.Scan(&c.MarketID, &c.Voter, &kind, &amount, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		c.Kind = domain.ClaimKind(kind)
		c.Amount = uint64(amount)
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claims rows: %w", err)
	}
	return claims, nil
}

// ListAudit returns audit entries with ID greater than sinceID, oldest first.
func (s *Store) ListAudit(ctx context.Context, sinceID int64, limit int) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event, detail, created_at
		FROM audit_log
		WHERE id > $1
		ORDER BY id
		LIMIT $2`,
		sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit rows: %w", err)
	}
	return entries, nil
}

// ledgerTx implements domain.LedgerTx over an open pgx transaction.
type ledgerTx struct {
	q querier
}

func (t *ledgerTx) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, t.q, id)
}

func (t *ledgerTx) InsertMarket(ctx context.Context, m domain.Market) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO markets (
			id, creator, creation_stake, vote_stake, expiry_time,
			resolved, encrypted_yes, encrypted_no, revealed_yes, revealed_no,
			prize_pool, yes_won, yes_voters, no_voters, decryption_request_id,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16
		)`,
		m.ID, m.Creator, int64(m.CreationStake), int64(m.VoteStake), m.ExpiryTime,
		m.Resolved, m.EncryptedYes, m.EncryptedNo, int64(m.RevealedYes), int64(m.RevealedNo),
		int64(m.PrizePool), m.YesWon, int32(m.YesVoters), int32(m.NoVoters), m.DecryptionRequestID,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	return nil
}

func (t *ledgerTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE markets SET
			resolved              = $2,
			encrypted_yes         = $3,
			encrypted_no          = $4,
			revealed_yes          = $5,
			revealed_no           = $6,
			prize_pool            = $7,
			yes_won               = $8,
			yes_voters            = $9,
			no_voters             = $10,
			decryption_request_id = $11
		WHERE id = $1`,
		m.ID,
		m.Resolved, m.EncryptedYes, m.EncryptedNo,
		int64(m.RevealedYes), int64(m.RevealedNo),
		int64(m.PrizePool), m.YesWon,
		int32(m.YesVoters), int32(m.NoVoters),
		m.DecryptionRequestID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) MarketByRequestID(ctx context.Context, requestID string) (domain.Market, error) {
	if requestID == "" {
		return domain.Market{}, domain.ErrNotFound
	}
	row := t.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE decryption_request_id = $1`, requestID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by request %s: %w", requestID, err)
	}
	return m, nil
}

func (t *ledgerTx) GetVote(ctx context.Context, marketID, voter string) (domain.Vote, error) {
	var (
		v    domain.Vote
		side int16
	)
	err := t.q.QueryRow(ctx, `
		SELECT market_id, voter, side, weight, cast_at
		FROM votes
		WHERE market_id = $1 AND voter = $2`,
		marketID, voter,
	).Scan(&v.MarketID, &v.Voter, &side, &v.Weight, &v.CastAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("postgres: get vote %s/%s: %w", marketID, voter, err)
	}
	v.Side = domain.VoteSide(side)
	return v, nil
}

func (t *ledgerTx) InsertVote(ctx context.Context, v domain.Vote) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO votes (market_id, voter, side, weight, cast_at)
		VALUES ($1, $2, $3, $4, $5)`,
		v.MarketID, v.Voter, int16(v.Side), v.Weight, v.CastAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert vote %s/%s: %w", v.MarketID, v.Voter, err)
	}
	return nil
}

func (t *ledgerTx) HasClaimed(ctx context.Context, marketID, voter string) (bool, error) {
	return hasClaimed(ctx, t.q, marketID, voter)
}

func (t *ledgerTx) InsertClaim(ctx context.Context, c domain.Claim) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO claims (market_id, voter, kind, amount, claimed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.MarketID, c.Voter, string(c.Kind), int64(c.Amount), c.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert claim %s/%s: %w", c.MarketID, c.Voter, err)
	}
	return nil
}

func (t *ledgerTx) GetTreasury(ctx context.Context) (domain.Treasury, error) {
	return getTreasury(ctx, t.q)
}

func (t *ledgerTx) SetTreasury(ctx context.Context, tr domain.Treasury) error {
	_, err := t.q.Exec(ctx, `
		UPDATE treasury SET balance = $1, platform_stake = $2 WHERE id = 1`,
		int64(tr.Balance), int64(tr.PlatformStake),
	)
	if err != nil {
		return fmt.Errorf("postgres: set treasury: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendAudit(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: encode audit detail: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO audit_log (event, detail) VALUES ($1, $2)`,
		event, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: append audit %s: %w", event, err)
	}
	return nil
}
