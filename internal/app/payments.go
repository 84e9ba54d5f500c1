package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/approval"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/otp"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

// PaymentOutcome is an "I have Paid" result. OTP is set when the journey
// continues with the auto-debit confirmation.
type PaymentOutcome struct {
	approval.Outcome
	OTP *OTPSession `json:"otp,omitempty"`
}

// OTPSession is an auto-debit OTP modal as returned to the portal.
type OTPSession struct {
	ID      uuid.UUID          `json:"id"`
	Variant domain.FlowVariant `json:"variant"`
	otp.View
}

type otpSession struct {
	id           uuid.UUID
	variant      domain.FlowVariant
	confirmation *otp.Confirmation
}

// OTPCode sets either one cell or the whole code.
type OTPCode struct {
	Index *int   `json:"index,omitempty"`
	Value string `json:"value,omitempty"`
	Code  string `json:"code,omitempty"`
}

func (s *Service) screen(agentID string, variant domain.FlowVariant) (*approval.Screen, error) {
	key, err := flowKey(agentID, variant)
	if err != nil {
		return nil, err
	}
	return approval.NewScreen(s.upstream, s.states, key), nil
}

// PaymentInstructions returns the approval screen for the flow's payment.
func (s *Service) PaymentInstructions(ctx context.Context, agentID string, variant domain.FlowVariant) (approval.ScreenView, error) {
	screen, err := s.screen(agentID, variant)
	if err != nil {
		return approval.ScreenView{}, err
	}
	return screen.View(ctx)
}

// VerifyPayment runs one "I have Paid" check. A verified premium-financing
// payment opens the auto-debit OTP modal in the same response.
func (s *Service) VerifyPayment(ctx context.Context, agentID string, variant domain.FlowVariant) (PaymentOutcome, error) {
	screen, err := s.screen(agentID, variant)
	if err != nil {
		return PaymentOutcome{}, err
	}
	outcome, err := screen.ConfirmPaid(ctx)
	if err != nil {
		return PaymentOutcome{Outcome: outcome}, err
	}
	if !outcome.Verified {
		return PaymentOutcome{Outcome: outcome}, nil
	}

	event := rabbitmq.PaymentVerified{FinancingID: outcome.FinancingID}
	if outcome.Payment != nil {
		event.PaymentID = outcome.Payment.PaymentID
		event.ReferenceID = outcome.Payment.ReferenceID
		event.TransactionID = outcome.Payment.TransactionID
	}
	s.publish(ctx, rabbitmq.RoutingPaymentVerified, agentID, variant, event)

	result := PaymentOutcome{Outcome: outcome}
	if outcome.Next == approval.NextOTP {
		session, err := s.OpenOTP(ctx, agentID, variant, outcome.FinancingID)
		if err != nil {
			return result, err
		}
		result.OTP = &session
	}
	return result, nil
}

// OpenOTP starts an auto-debit confirmation for a financing id. Finishing it,
// confirmed or not, completes the payment flow.
func (s *Service) OpenOTP(ctx context.Context, agentID string, variant domain.FlowVariant, pfID string) (OTPSession, error) {
	pfID = strings.TrimSpace(pfID)
	if pfID == "" {
		return OTPSession{}, fmt.Errorf("%w: pfId is required", ErrInvalidInput)
	}
	screen, err := s.screen(agentID, variant)
	if err != nil {
		return OTPSession{}, err
	}

	session := &otpSession{id: uuid.New(), variant: variant}
	session.confirmation = otp.NewConfirmation(s.upstream, pfID, otp.Options{
		Length:          s.opts.OTPLength,
		CooldownSeconds: s.opts.OTPCooldownSeconds,
		Ticker:          s.opts.OTPTicker,
	}, func(ctx context.Context, confirmed bool) error {
		s.otps.Remove(session.id)
		s.publish(ctx, rabbitmq.RoutingAutoDebitConfirmed, agentID, variant, rabbitmq.AutoDebitConfirmed{
			FinancingID: pfID,
			Confirmed:   confirmed,
		})
		return screen.Complete(ctx)
	})
	s.otps.Put(session.id, agentID, session)

	// A failed reference fetch is shown in the modal; the agent can still close it.
	view, _ := session.confirmation.Open(ctx)
	return OTPSession{ID: session.id, Variant: variant, View: view}, nil
}

func (s *Service) otpSession(agentID string, id uuid.UUID) (*otpSession, error) {
	return s.otps.Get(id, agentID)
}

func (s *Service) OTP(ctx context.Context, agentID string, id uuid.UUID) (OTPSession, error) {
	session, err := s.otpSession(agentID, id)
	if err != nil {
		return OTPSession{}, err
	}
	return OTPSession{ID: session.id, Variant: session.variant, View: session.confirmation.View()}, nil
}

func (s *Service) SetOTPCode(ctx context.Context, agentID string, id uuid.UUID, code OTPCode) (OTPSession, error) {
	session, err := s.otpSession(agentID, id)
	if err != nil {
		return OTPSession{}, err
	}
	var view otp.View
	if code.Index != nil {
		view, err = session.confirmation.SetCell(*code.Index, code.Value)
	} else {
		view, err = session.confirmation.SetCode(code.Code)
	}
	if err != nil {
		return OTPSession{}, err
	}
	return OTPSession{ID: session.id, Variant: session.variant, View: view}, nil
}

func (s *Service) ConfirmOTP(ctx context.Context, agentID string, id uuid.UUID) (OTPSession, error) {
	session, err := s.otpSession(agentID, id)
	if err != nil {
		return OTPSession{}, err
	}
	if err := s.limit(ctx, ScopeOTP, agentID, s.opts.OTPRateLimit); err != nil {
		return OTPSession{}, err
	}
	view, err := session.confirmation.Confirm(ctx)
	if err != nil {
		return OTPSession{ID: session.id, Variant: session.variant, View: view}, err
	}
	return OTPSession{ID: session.id, Variant: session.variant, View: view}, nil
}

func (s *Service) ResendOTP(ctx context.Context, agentID string, id uuid.UUID) (OTPSession, error) {
	session, err := s.otpSession(agentID, id)
	if err != nil {
		return OTPSession{}, err
	}
	if err := s.limit(ctx, ScopeOTP, agentID, s.opts.OTPRateLimit); err != nil {
		return OTPSession{}, err
	}
	view, err := session.confirmation.Resend(ctx)
	if err != nil {
		return OTPSession{ID: session.id, Variant: session.variant, View: view}, err
	}
	return OTPSession{ID: session.id, Variant: session.variant, View: view}, nil
}

// CloseOTP dismisses the modal without confirming; the flow still completes.
func (s *Service) CloseOTP(ctx context.Context, agentID string, id uuid.UUID) error {
	session, err := s.otpSession(agentID, id)
	if err != nil {
		return err
	}
	return session.confirmation.Close(ctx)
}
