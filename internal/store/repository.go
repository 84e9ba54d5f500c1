/**
 * @description
 * This file defines the `StateStore` interface, the contract for persisting the
 * session-scoped PaymentVerificationState of each payment flow. Every payment
 * flow variant of an agent is stored under its own key.
 *
 * @notes
 * - Writes are merge-based: Update hands the current value to a mutator and
 *   persists the result atomically, so steps that own different slices never
 *   overwrite each other.
 * - Update returns only after the write is committed, which lets a step move
 *   to the next one without waiting on a timer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

var (
	ErrStateNotFound = errors.New("payment flow state not found")
	ErrInvalidKey    = errors.New("flow key requires an agent id and a known variant")
)

// FlowKey identifies one payment flow of one agent.
type FlowKey struct {
	AgentID string
	Variant domain.FlowVariant
}

func (k FlowKey) String() string {
	return k.AgentID + ":" + string(k.Variant)
}

// Validate rejects keys that would collide across agents or variants.
func (k FlowKey) Validate() error {
	if k.AgentID == "" {
		return ErrInvalidKey
	}
	if _, err := domain.ParseFlowVariant(string(k.Variant)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// Mutator changes a state in place. Returning an error aborts the write.
type Mutator func(state *domain.PaymentVerificationState) error

// StateStore persists PaymentVerificationState values.
type StateStore interface {
	// Get returns the stored state or ErrStateNotFound.
	Get(ctx context.Context, key FlowKey) (domain.PaymentVerificationState, error)
	// Update applies fn to the current state (empty when absent) and commits it.
	Update(ctx context.Context, key FlowKey, fn Mutator) (domain.PaymentVerificationState, error)
	// Clear removes one flow's state.
	Clear(ctx context.Context, key FlowKey) error
	// ClearAgent removes every flow state of an agent, used on logout.
	ClearAgent(ctx context.Context, agentID string) error
	// PurgeExpired removes states past their lifetime and reports how many.
	PurgeExpired(ctx context.Context) (int, error)
}

// applyMutator runs fn on a copy of current so a failing mutator never leaks
// partial changes.
func applyMutator(current domain.PaymentVerificationState, fn Mutator, now time.Time) (domain.PaymentVerificationState, error) {
	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	next.UpdatedAt = now
	return next, nil
}
