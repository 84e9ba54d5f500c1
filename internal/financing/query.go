/**
 * @description
 * Query keeps the premium-financing calculation in step with the loan selection.
 * Every change of inputs fires a new backend request; responses are tagged with
 * the generation that fired them and only the latest generation may update the
 * visible result. Results are cached per input key, so returning to a selection
 * that was already calculated shows it without a new request.
 *
 * @notes
 * - In-flight requests are never aborted. A stale response is simply dropped.
 * - Data is cleared as soon as the key changes so a result for old parameters
 *   is never shown against new ones.
 */

package financing

import (
	"context"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// Calculator performs the backend premium-financing calculation.
type Calculator interface {
	CalculatePremiumFinancing(ctx context.Context, in domain.LoanInputs) (*domain.CalculationResult, error)
}

// QueryState is a consistent snapshot of a Query.
type QueryState struct {
	Inputs     domain.LoanInputs
	Key        string
	Enabled    bool
	Data       *domain.CalculationResult
	IsPending  bool
	Err        error
	Generation uint64
}

// Query is the calculation hook. It is safe for concurrent use.
type Query struct {
	calc Calculator

	mu         sync.Mutex
	generation uint64
	inputs     domain.LoanInputs
	key        string
	enabled    bool
	data       *domain.CalculationResult
	err        error
	pending    bool
	settled    chan struct{}
	cache      map[string]*domain.CalculationResult
	closed     bool
}

func NewQuery(calc Calculator) *Query {
	settled := make(chan struct{})
	close(settled)
	return &Query{
		calc:    calc,
		settled: settled,
		cache:   make(map[string]*domain.CalculationResult),
	}
}

// Set updates the inputs. When enabled and the inputs differ from the current
// ones, a request is fired on ctx unless the result is already cached. ctx must
// outlive the caller if the request should complete after it returns.
func (q *Query) Set(ctx context.Context, inputs domain.LoanInputs, enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	key := inputs.Key()
	if enabled && q.enabled && key == q.key && (q.pending || q.data != nil || q.err != nil) {
		return
	}

	q.inputs = inputs
	q.key = key
	q.enabled = enabled
	q.err = nil
	// Any response still in flight now belongs to an older generation.
	q.generation++

	if cached, ok := q.cache[key]; ok {
		q.data = cached
		q.settle()
		return
	}
	q.data = nil
	if !enabled {
		q.settle()
		return
	}

	q.fire(ctx, inputs)
}

// Refetch re-issues the request for the current inputs, bypassing the cache.
// It backs the user's explicit retry after an error.
func (q *Query) Refetch(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || !q.enabled {
		return
	}
	delete(q.cache, q.key)
	q.generation++
	q.data = nil
	q.err = nil
	q.fire(ctx, q.inputs)
}

// fire starts a request for the current generation. Callers hold q.mu.
func (q *Query) fire(ctx context.Context, inputs domain.LoanInputs) {
	if !q.pending {
		q.settled = make(chan struct{})
	}
	q.pending = true
	gen := q.generation
	go q.run(ctx, gen, inputs)
}

func (q *Query) run(ctx context.Context, gen uint64, inputs domain.LoanInputs) {
	res, err := q.calc.CalculatePremiumFinancing(ctx, inputs)

	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil && res != nil {
		q.cache[inputs.Key()] = res
	}
	if q.closed || gen != q.generation {
		return
	}
	q.data = res
	q.err = err
	q.settle()
}

// settle marks the current generation finished and wakes waiters. Callers hold q.mu.
func (q *Query) settle() {
	if q.pending {
		q.pending = false
		close(q.settled)
	}
}

// Snapshot returns the current state.
func (q *Query) Snapshot() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Query) snapshotLocked() QueryState {
	return QueryState{
		Inputs:     q.inputs,
		Key:        q.key,
		Enabled:    q.enabled,
		Data:       q.data,
		IsPending:  q.pending,
		Err:        q.err,
		Generation: q.generation,
	}
}

// Wait blocks until no request is pending for the latest generation, or ctx ends.
func (q *Query) Wait(ctx context.Context) (QueryState, error) {
	for {
		q.mu.Lock()
		if !q.pending || q.closed {
			state := q.snapshotLocked()
			q.mu.Unlock()
			return state, nil
		}
		settled := q.settled
		q.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return q.Snapshot(), ctx.Err()
		}
	}
}

// Close stops the query from accepting further results and releases waiters.
func (q *Query) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.settle()
}
