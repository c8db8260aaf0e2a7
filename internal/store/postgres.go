// Package store is the resolver's optional crash-recovery persistence
// layer: it mirrors in-flight swap executions, auction participations,
// and risk assessments to PostgreSQL so a restarted resolver can see
// what it was doing before it died.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/swap-resolver/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// Store persists resolver state to PostgreSQL via pgx. A nil *Store is
// valid everywhere it is used: every method short-circuits so the
// resolver runs unpersisted rather than failing when no database is
// configured.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to connStr and verifies liveness
// with a ping before returning, so a misconfigured connection string
// fails fast at startup instead of on the first query.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	log.Println("store: connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool. Safe on a nil Store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InitSchema creates every table this package uses, if not already
// present.
func (s *Store) InitSchema() error {
	if s == nil {
		return nil
	}
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	log.Println("store: schema initialized")
	return nil
}

// SaveExecution upserts a swap execution and appends any transactions
// it has accumulated since the last save.
func (s *Store) SaveExecution(ctx context.Context, exec *models.SwapExecution) error {
	if s == nil {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO swap_executions (order_id, status, source_chain_id, dest_chain_id, secret_hash, fail_reason, revealed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status, fail_reason = EXCLUDED.fail_reason,
			revealed_at = EXCLUDED.revealed_at, updated_at = NOW()`,
		exec.Order.OrderID, exec.Order.Status, exec.Order.Source.ChainID, exec.Order.Destination.ChainID,
		exec.Order.SecretHash.String(), exec.FailReason, nullableTime(exec.RevealedAt))
	if err != nil {
		return fmt.Errorf("store: upsert execution: %w", err)
	}

	for _, t := range exec.Transactions {
		_, err = tx.Exec(ctx, `
			INSERT INTO executed_transactions (order_id, role, chain_id, txid, submitted_at, confirmed, confirmed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (order_id, role, txid) DO UPDATE SET
				confirmed = EXCLUDED.confirmed, confirmed_at = EXCLUDED.confirmed_at`,
			exec.Order.OrderID, t.Role, t.ChainID, t.TxID, t.SubmittedAt, t.Confirmed, nullableTime(t.ConfirmedAt))
		if err != nil {
			return fmt.Errorf("store: upsert transaction: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SaveParticipation upserts an auction participation's current outcome
// and bid.
func (s *Store) SaveParticipation(ctx context.Context, p models.AuctionParticipation) error {
	if s == nil {
		return nil
	}
	var rate *float64
	var timing *string
	var submittedAt any
	if p.Bid != nil {
		rate = &p.Bid.Rate
		t := string(p.Bid.Timing)
		timing = &t
		submittedAt = nullableTime(p.Bid.SubmittedAt)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auction_participations (order_id, outcome, bid_rate, bid_timing, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET
			outcome = EXCLUDED.outcome, bid_rate = EXCLUDED.bid_rate,
			bid_timing = EXCLUDED.bid_timing, updated_at = NOW()`,
		p.OrderID, p.Outcome, rate, timing, submittedAt)
	if err != nil {
		return fmt.Errorf("store: upsert participation: %w", err)
	}
	return nil
}

// SaveRiskAssessment appends one risk assessment record for audit and
// post-incident review.
func (s *Store) SaveRiskAssessment(ctx context.Context, a models.RiskAssessment) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_assessments (order_id, assessed_at, score, level, recommend)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, assessed_at) DO NOTHING`,
		a.OrderID, a.AssessedAt, a.Score, a.Level, a.Recommend)
	if err != nil {
		return fmt.Errorf("store: insert risk assessment: %w", err)
	}
	return nil
}

// OpenOrderIDs returns the order IDs of every execution not yet in a
// terminal status, for the resolver to reconcile against the relayer
// on startup after a crash.
func (s *Store) OpenOrderIDs(ctx context.Context) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT order_id FROM swap_executions
		WHERE status NOT IN ('completed', 'failed', 'expired')`)
	if err != nil {
		return nil, fmt.Errorf("store: query open executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan open execution: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
