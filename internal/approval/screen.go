/**
 * @description
 * Screen backs the payment approval page: it shows how to approve the pending
 * mobile money prompt and, when the agent says the customer has paid, checks the
 * payment once.
 *
 * @notes
 * - "I have Paid" is a single verification call. There is no polling; the agent
 *   presses it again if the payment is still pending.
 * - A 400 from the verifier means the payment is not complete yet. It is shown as
 *   a message, not treated as a failure.
 */

package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

const NotCompletedMessage = "Transaction has not been completed yet."

var (
	ErrNoPayment = errors.New("no payment to verify")
	ErrBusy      = errors.New("payment verification already in flight")
)

type Next string

const (
	NextWait     Next = "wait"
	NextOTP      Next = "otp"
	NextRedirect Next = "redirect"
)

type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentID string) (*domain.PaymentVerification, error)
	VerifyPaymentByReference(ctx context.Context, refID string) (*domain.PaymentVerification, error)
}

// Outcome is the result of one "I have Paid" press.
type Outcome struct {
	Verified    bool                        `json:"verified"`
	Message     string                      `json:"message,omitempty"`
	Next        Next                        `json:"next"`
	FinancingID string                      `json:"pfId,omitempty"`
	Payment     *domain.PaymentVerification `json:"payment,omitempty"`
}

type ScreenView struct {
	Payment      *domain.PaymentData `json:"paymentData"`
	Network      string              `json:"network"`
	Instructions []string            `json:"instructions"`
}

type Screen struct {
	verifier PaymentVerifier
	states   store.StateStore
	key      store.FlowKey

	mu        sync.Mutex
	verifying bool
}

func NewScreen(verifier PaymentVerifier, states store.StateStore, key store.FlowKey) *Screen {
	return &Screen{verifier: verifier, states: states, key: key}
}

func (s *Screen) View(ctx context.Context) (ScreenView, error) {
	payment, err := s.payment(ctx)
	if err != nil {
		return ScreenView{}, err
	}
	return ScreenView{
		Payment:      payment,
		Network:      NormalizeNetwork(payment.Network),
		Instructions: Instructions(payment.Network),
	}, nil
}

// ConfirmPaid verifies the payment by reference id when present, else by payment id.
func (s *Screen) ConfirmPaid(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.verifying {
		s.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	s.verifying = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.verifying = false
		s.mu.Unlock()
	}()

	payment, err := s.payment(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var result *domain.PaymentVerification
	if payment.ReferenceID != "" {
		result, err = s.verifier.VerifyPaymentByReference(ctx, payment.ReferenceID)
	} else {
		result, err = s.verifier.VerifyPayment(ctx, payment.PaymentID)
	}
	if ipapclient.IsStatus(err, http.StatusBadRequest) {
		return Outcome{Next: NextWait, Message: NotCompletedMessage}, nil
	}
	if err != nil {
		log.Printf("level=warn component=approval msg=\"payment verification failed\" payment_id=%s reference_id=%s err=%q", payment.PaymentID, payment.ReferenceID, err.Error())
		return Outcome{Next: NextWait, Message: err.Error()}, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = NotCompletedMessage
		}
		return Outcome{Next: NextWait, Message: msg, Payment: result}, nil
	}

	financingID := result.FinancingID
	if financingID == "" {
		financingID = payment.PremiumFinancingID
	}
	outcome := Outcome{Verified: true, Payment: result, Message: result.Message}
	if payment.IsPremiumFinancing && financingID != "" {
		outcome.Next = NextOTP
		outcome.FinancingID = financingID
		return outcome, nil
	}

	outcome.Next = NextRedirect
	if err := s.Complete(ctx); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Complete clears the flow once the journey is over.
func (s *Screen) Complete(ctx context.Context) error {
	if err := s.states.Clear(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear flow state: %w", err)
	}
	return nil
}

func (s *Screen) payment(ctx context.Context) (*domain.PaymentData, error) {
	state, err := s.states.Get(ctx, s.key)
	if errors.Is(err, store.ErrStateNotFound) {
		return nil, ErrNoPayment
	}
	if err != nil {
		return nil, err
	}
	if state.PaymentData == nil || (state.PaymentData.PaymentID == "" && state.PaymentData.ReferenceID == "") {
		return nil, ErrNoPayment
	}
	return state.PaymentData, nil
}
