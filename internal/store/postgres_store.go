/**
 * @description
 * This file provides the PostgreSQL implementation of the `StateStore` interface,
 * used when flow state must survive a redis flush. Each flow is one row keyed by
 * agent and variant, holding the state as JSONB with an expiry timestamp.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

const flowStateSchema = `
CREATE TABLE IF NOT EXISTS portal_flow_states (
    agent_id   TEXT        NOT NULL,
    variant    TEXT        NOT NULL,
    state      JSONB       NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (agent_id, variant)
);
CREATE INDEX IF NOT EXISTS portal_flow_states_expires_at_idx ON portal_flow_states (expires_at);
`

// PostgresStore persists flow state in the portal_flow_states table.
type PostgresStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

func NewPostgresStore(db *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, flowStateSchema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key FlowKey) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	query := `
        SELECT state
        FROM portal_flow_states
        WHERE agent_id = $1 AND variant = $2 AND expires_at > NOW()
    `
	var raw []byte
	err := s.db.QueryRow(ctx, query, key.AgentID, string(key.Variant)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PaymentVerificationState{}, ErrStateNotFound
	}
	if err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to read flow state: %w", err)
	}

	var state domain.PaymentVerificationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to decode flow state: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) Update(ctx context.Context, key FlowKey, fn Mutator) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to begin flow state transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Seed the row so concurrent first writers serialize on the row lock.
	seed := `
        INSERT INTO portal_flow_states (agent_id, variant, state, expires_at)
        VALUES ($1, $2, '{}'::jsonb, NOW() + make_interval(secs => $3))
        ON CONFLICT (agent_id, variant) DO NOTHING
    `
	if _, err := tx.Exec(ctx, seed, key.AgentID, string(key.Variant), s.ttl.Seconds()); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to seed flow state: %w", err)
	}

	var raw []byte
	var expiresAt time.Time
	lock := `
        SELECT state, expires_at
        FROM portal_flow_states
        WHERE agent_id = $1 AND variant = $2
        FOR UPDATE
    `
	if err := tx.QueryRow(ctx, lock, key.AgentID, string(key.Variant)).Scan(&raw, &expiresAt); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to lock flow state: %w", err)
	}

	current := domain.PaymentVerificationState{}
	if expiresAt.After(time.Now()) {
		if err := json.Unmarshal(raw, &current); err != nil {
			return domain.PaymentVerificationState{}, fmt.Errorf("failed to decode flow state: %w", err)
		}
	}

	next, err := applyMutator(current, fn, time.Now().UTC())
	if err != nil {
		return domain.PaymentVerificationState{}, err
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to encode flow state: %w", err)
	}

	write := `
        UPDATE portal_flow_states
        SET state = $3,
            expires_at = NOW() + make_interval(secs => $4),
            updated_at = NOW()
        WHERE agent_id = $1 AND variant = $2
    `
	if _, err := tx.Exec(ctx, write, key.AgentID, string(key.Variant), encoded, s.ttl.Seconds()); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to write flow state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.PaymentVerificationState{}, fmt.Errorf("failed to commit flow state: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Clear(ctx context.Context, key FlowKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM portal_flow_states WHERE agent_id = $1 AND variant = $2`, key.AgentID, string(key.Variant))
	return err
}

func (s *PostgresStore) ClearAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidKey
	}
	_, err := s.db.Exec(ctx, `DELETE FROM portal_flow_states WHERE agent_id = $1`, agentID)
	return err
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM portal_flow_states WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
