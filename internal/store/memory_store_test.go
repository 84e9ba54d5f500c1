package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

func TestMemoryStore_UpdateMergesSlices(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	key := FlowKey{AgentID: "agent-1", Variant: domain.VariantDirect}

	if _, err := s.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.VerificationID = "ver-1"
		st.GhanaCardResponse = &domain.VerificationResponse{Success: true, VerificationID: "ver-1"}
		return nil
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	if _, err := s.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.EnsureLoanData().Duration = 6
		return nil
	}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.VerificationID != "ver-1" || got.GhanaCardResponse == nil {
		t.Fatalf("verification slice lost after loan update: %+v", got)
	}
	if got.LoanData == nil || got.LoanData.Duration != 6 {
		t.Fatalf("expected loan duration 6, got %+v", got.LoanData)
	}
}

func TestMemoryStore_FailedMutatorLeavesStateUntouched(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	key := FlowKey{AgentID: "agent-1", Variant: domain.VariantRemote}

	s.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.EnsurePaymentData().AccountName = "Ama"
		return nil
	})

	boom := errors.New("boom")
	_, err := s.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.PaymentData.AccountName = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	got, _ := s.Get(ctx, key)
	if got.PaymentData.AccountName != "Ama" {
		t.Fatalf("expected account name to survive failed mutator, got %q", got.PaymentData.AccountName)
	}
}

func TestMemoryStore_VariantsAreIsolated(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	direct := FlowKey{AgentID: "agent-1", Variant: domain.VariantDirect}
	remote := FlowKey{AgentID: "agent-1", Variant: domain.VariantRemote}

	s.Update(ctx, direct, func(st *domain.PaymentVerificationState) error {
		st.VerificationID = "direct"
		return nil
	})

	if _, err := s.Get(ctx, remote); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected remote flow to be empty, got %v", err)
	}

	if err := s.ClearAgent(ctx, "agent-1"); err != nil {
		t.Fatalf("ClearAgent: %v", err)
	}
	if _, err := s.Get(ctx, direct); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected cleared state, got %v", err)
	}
}

func TestMemoryStore_ExpiresAndPurges(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()
	key := FlowKey{AgentID: "agent-1", Variant: domain.VariantStandard}

	s.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
		st.VerificationID = "v"
		return nil
	})

	now = now.Add(2 * time.Minute)
	purged, err := s.PurgeExpired(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("PurgeExpired = %d, %v; want 1, nil", purged, err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected expired state to be gone, got %v", err)
	}
}

func TestMemoryStore_RejectsInvalidKeys(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	_, err := s.Update(context.Background(), FlowKey{AgentID: "a", Variant: "bogus"}, func(*domain.PaymentVerificationState) error { return nil })
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
