package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/verification"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

// Verification wizard actions.
const (
	ActionGhanaCard   = "ghana-card"
	ActionBegin       = "begin"
	ActionCapture     = "capture"
	ActionRetake      = "retake"
	ActionConfirm     = "confirm"
	ActionRetry       = "retry"
	ActionPrevious    = "previous"
	ActionContinue    = "continue"
	ActionRedo        = "redo"
	ActionCameraError = "camera-error"
	ActionCameraRetry = "camera-retry"
)

type StartVerificationRequest struct {
	Variant         domain.FlowVariant `json:"variant"`
	Public          bool               `json:"public"`
	UserEmail       string             `json:"userEmail"`
	UserPhone       string             `json:"userPhone"`
	GhanaCardNumber string             `json:"ghanaCardNumber"`
}

// VerificationAction carries the payload of a wizard action.
type VerificationAction struct {
	GhanaCardNumber string `json:"ghanaCardNumber,omitempty"`
	Image           string `json:"image,omitempty"`
	Message         string `json:"message,omitempty"`
}

// VerificationSession is a wizard as returned to the portal. Done is set once the
// wizard handed off or was cancelled and the session no longer exists.
type VerificationSession struct {
	ID      uuid.UUID          `json:"id"`
	Variant domain.FlowVariant `json:"variant"`
	Done    bool               `json:"done"`
	verification.View
}

type verificationSession struct {
	id      uuid.UUID
	variant domain.FlowVariant
	flow    *verification.Flow
	camera  *verification.CameraLease
}

// StartVerification opens a verification wizard for a flow. A flow that already
// holds a successful verification is shown as restored.
func (s *Service) StartVerification(ctx context.Context, agentID string, req StartVerificationRequest) (VerificationSession, error) {
	key, err := flowKey(agentID, req.Variant)
	if err != nil {
		return VerificationSession{}, err
	}

	session := &verificationSession{
		id:      uuid.New(),
		variant: req.Variant,
		camera:  &verification.CameraLease{},
	}
	session.flow = verification.NewFlow(s.upstream, session.camera, verification.Options{
		Public:    req.Public,
		UserEmail: strings.TrimSpace(req.UserEmail),
		UserPhone: strings.TrimSpace(req.UserPhone),
	}, verification.Callbacks{
		OnSuccess: func(ctx context.Context, verificationID, ghanaCardNumber string, resp domain.VerificationResponse) error {
			return s.completeVerification(ctx, key, session, verificationID, ghanaCardNumber, resp)
		},
		OnCancel: func(ctx context.Context) error {
			s.verifications.Remove(session.id)
			return nil
		},
	})

	state, err := s.states.Get(ctx, key)
	switch {
	case err == nil && state.IdentityVerified():
		if err := session.flow.Restore(state.VerificationID, *state.GhanaCardResponse); err != nil {
			return VerificationSession{}, err
		}
	case err != nil && !errors.Is(err, store.ErrStateNotFound):
		return VerificationSession{}, err
	}
	if number := strings.TrimSpace(req.GhanaCardNumber); number != "" && session.flow.State().Phase() == verification.PhaseStart {
		if _, err := session.flow.SetGhanaCardNumber(number); err != nil {
			return VerificationSession{}, err
		}
	}

	s.verifications.Put(session.id, agentID, session)
	return s.verificationView(session, false), nil
}

func (s *Service) completeVerification(ctx context.Context, key store.FlowKey, session *verificationSession, verificationID, ghanaCardNumber string, resp domain.VerificationResponse) error {
	restored := session.flow.State().IsRestored()
	if !restored {
		_, err := s.states.Update(ctx, key, func(st *domain.PaymentVerificationState) error {
			st.VerificationID = verificationID
			stored := resp
			st.GhanaCardResponse = &stored
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to save verification: %w", err)
		}
	}
	s.publish(ctx, rabbitmq.RoutingVerificationCompleted, key.AgentID, key.Variant, rabbitmq.VerificationCompleted{
		VerificationID:  verificationID,
		GhanaCardNumber: ghanaCardNumber,
		Restored:        restored,
	})
	return nil
}

func (s *Service) verificationView(session *verificationSession, done bool) VerificationSession {
	return VerificationSession{
		ID:      session.id,
		Variant: session.variant,
		Done:    done,
		View:    session.flow.View(),
	}
}

func (s *Service) Verification(ctx context.Context, agentID string, id uuid.UUID) (VerificationSession, error) {
	session, err := s.verifications.Get(id, agentID)
	if err != nil {
		return VerificationSession{}, err
	}
	return s.verificationView(session, false), nil
}

// VerificationAction applies one wizard action and returns the resulting view.
func (s *Service) VerificationAction(ctx context.Context, agentID string, id uuid.UUID, action string, body VerificationAction) (VerificationSession, error) {
	session, err := s.verifications.Get(id, agentID)
	if err != nil {
		return VerificationSession{}, err
	}
	flow := session.flow

	var view verification.View
	switch action {
	case ActionGhanaCard:
		view, err = flow.SetGhanaCardNumber(body.GhanaCardNumber)
	case ActionBegin:
		view, err = flow.Begin(ctx)
	case ActionCapture:
		view, err = flow.Capture(ctx, body.Image)
	case ActionRetake:
		view, err = flow.Retake(ctx)
	case ActionConfirm:
		if err := s.limit(ctx, ScopeGhanaCardVerify, agentID, s.opts.VerifyRateLimit); err != nil {
			return VerificationSession{}, err
		}
		view, err = flow.Confirm(ctx)
	case ActionRetry:
		view, err = flow.Retry(ctx)
	case ActionRedo:
		view, err = flow.Redo(ctx)
	case ActionCameraError:
		msg := strings.TrimSpace(body.Message)
		if msg == "" {
			msg = "camera unavailable"
		}
		view, err = flow.ReportCameraError(msg)
	case ActionCameraRetry:
		view, err = flow.RestartCamera(ctx)
	case ActionPrevious:
		atFirst := flow.State().Step() == 1
		view, err = flow.Previous(ctx)
		if err == nil && atFirst {
			return VerificationSession{ID: session.id, Variant: session.variant, Done: true, View: view}, nil
		}
	case ActionContinue:
		view, err = flow.Continue(ctx)
		if err == nil {
			s.verifications.Remove(session.id)
			log.Printf("level=info component=app msg=\"verification handed off\" agent_id=%s variant=%s", agentID, session.variant)
			return VerificationSession{ID: session.id, Variant: session.variant, Done: true, View: view}, nil
		}
	default:
		return VerificationSession{}, fmt.Errorf("%w: unknown verification action %q", ErrInvalidInput, action)
	}
	if err != nil {
		return VerificationSession{}, err
	}
	return VerificationSession{ID: session.id, Variant: session.variant, View: view}, nil
}

// CloseVerification tears a wizard down without handing off.
func (s *Service) CloseVerification(ctx context.Context, agentID string, id uuid.UUID) error {
	if _, err := s.verifications.Get(id, agentID); err != nil {
		return err
	}
	s.verifications.Remove(id)
	return nil
}
