package approval

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

type paymentVerifierStub struct {
	result *domain.PaymentVerification
	err    error
	byID   []string
	byRef  []string
}

func (s *paymentVerifierStub) VerifyPayment(ctx context.Context, paymentID string) (*domain.PaymentVerification, error) {
	s.byID = append(s.byID, paymentID)
	return s.result, s.err
}

func (s *paymentVerifierStub) VerifyPaymentByReference(ctx context.Context, refID string) (*domain.PaymentVerification, error) {
	s.byRef = append(s.byRef, refID)
	return s.result, s.err
}

func newScreenFixture(t *testing.T, verifier PaymentVerifier, payment domain.PaymentData) (*Screen, store.StateStore, store.FlowKey) {
	t.Helper()
	states := store.NewMemoryStore(time.Hour)
	key := store.FlowKey{AgentID: "agent-1", Variant: domain.VariantDirect}
	_, err := states.Update(context.Background(), key, func(st *domain.PaymentVerificationState) error {
		p := payment
		st.PaymentData = &p
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewScreen(verifier, states, key), states, key
}

func TestInstructions(t *testing.T) {
	tests := []struct {
		network string
		want    string
	}{
		{network: "mtn", want: NetworkMTN},
		{network: "Vodafone", want: NetworkTelecel},
		{network: "TELECEL", want: NetworkTelecel},
		{network: "airtel-tigo", want: NetworkAirtelTigo},
		{network: "glo", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			if got := NormalizeNetwork(tt.network); got != tt.want {
				t.Fatalf("NormalizeNetwork(%q) = %q, want %q", tt.network, got, tt.want)
			}
			steps := Instructions(tt.network)
			if len(steps) == 0 {
				t.Fatalf("expected instructions")
			}
			if tt.want == "" && steps[0] != defaultInstructions[0] {
				t.Fatalf("unknown network should get the default list")
			}
		})
	}
}

func TestConfirmPaid_NotCompletedIsAMessage(t *testing.T) {
	verifier := &paymentVerifierStub{err: &ipapclient.APIError{Op: "payment_verify", StatusCode: http.StatusBadRequest, Message: "pending"}}
	screen, _, _ := newScreenFixture(t, verifier, domain.PaymentData{PaymentID: "pay-1"})

	outcome, err := screen.ConfirmPaid(context.Background())
	if err != nil {
		t.Fatalf("a 400 must not be an error: %v", err)
	}
	if outcome.Verified || outcome.Message != NotCompletedMessage || outcome.Next != NextWait {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(verifier.byID) != 1 || verifier.byID[0] != "pay-1" {
		t.Fatalf("expected lookup by payment id, got %+v", verifier.byID)
	}
}

func TestConfirmPaid_UpstreamFailureIsReturned(t *testing.T) {
	verifier := &paymentVerifierStub{err: &ipapclient.APIError{Op: "payment_verify", StatusCode: http.StatusBadGateway, Message: "provider down"}}
	screen, _, _ := newScreenFixture(t, verifier, domain.PaymentData{PaymentID: "pay-1"})

	outcome, err := screen.ConfirmPaid(context.Background())
	if err == nil || !ipapclient.IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if outcome.Verified {
		t.Fatalf("unexpected verified outcome")
	}
}

func TestConfirmPaid_OtherClientErrorsAreNotPending(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity} {
		verifier := &paymentVerifierStub{err: &ipapclient.APIError{Op: "payment_verify", StatusCode: status, Message: "rejected"}}
		screen, _, _ := newScreenFixture(t, verifier, domain.PaymentData{PaymentID: "pay-1"})

		outcome, err := screen.ConfirmPaid(context.Background())
		if !ipapclient.IsStatus(err, status) {
			t.Fatalf("status %d: expected upstream error, got %v", status, err)
		}
		if outcome.Message == NotCompletedMessage {
			t.Fatalf("status %d: only a 400 means the payment is still pending", status)
		}
	}
}

func TestConfirmPaid_PremiumFinancingChainsOTP(t *testing.T) {
	verifier := &paymentVerifierStub{result: &domain.PaymentVerification{Success: true, FinancingID: "pf-9"}}
	screen, states, key := newScreenFixture(t, verifier, domain.PaymentData{
		PaymentID:          "pay-1",
		ReferenceID:        "ref-1",
		IsPremiumFinancing: true,
	})

	outcome, err := screen.ConfirmPaid(context.Background())
	if err != nil {
		t.Fatalf("ConfirmPaid: %v", err)
	}
	if !outcome.Verified || outcome.Next != NextOTP || outcome.FinancingID != "pf-9" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(verifier.byRef) != 1 || len(verifier.byID) != 0 {
		t.Fatalf("reference id should be preferred, byRef=%v byID=%v", verifier.byRef, verifier.byID)
	}
	if _, err := states.Get(context.Background(), key); err != nil {
		t.Fatalf("flow state must survive until the OTP step finishes: %v", err)
	}
}

func TestConfirmPaid_PlainPaymentRedirectsAndClears(t *testing.T) {
	verifier := &paymentVerifierStub{result: &domain.PaymentVerification{Success: true}}
	screen, states, key := newScreenFixture(t, verifier, domain.PaymentData{PaymentID: "pay-1"})

	outcome, err := screen.ConfirmPaid(context.Background())
	if err != nil {
		t.Fatalf("ConfirmPaid: %v", err)
	}
	if outcome.Next != NextRedirect {
		t.Fatalf("expected redirect, got %+v", outcome)
	}
	if _, err := states.Get(context.Background(), key); !errors.Is(err, store.ErrStateNotFound) {
		t.Fatalf("expected cleared state, got %v", err)
	}
}

func TestConfirmPaid_Unsuccessful(t *testing.T) {
	verifier := &paymentVerifierStub{result: &domain.PaymentVerification{Success: false}}
	screen, _, _ := newScreenFixture(t, verifier, domain.PaymentData{PaymentID: "pay-1"})

	outcome, err := screen.ConfirmPaid(context.Background())
	if err != nil || outcome.Verified || outcome.Message != NotCompletedMessage {
		t.Fatalf("unexpected outcome %+v err=%v", outcome, err)
	}
}

func TestConfirmPaid_NoPayment(t *testing.T) {
	states := store.NewMemoryStore(time.Hour)
	key := store.FlowKey{AgentID: "agent-1", Variant: domain.VariantRemote}
	screen := NewScreen(&paymentVerifierStub{}, states, key)
	if _, err := screen.ConfirmPaid(context.Background()); !errors.Is(err, ErrNoPayment) {
		t.Fatalf("expected ErrNoPayment, got %v", err)
	}
}
