package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

type verifierStub struct {
	resp   *domain.VerificationResponse
	err    error
	calls  int
	last   ipapclient.GhanaCardRequest
	public bool
}

func (v *verifierStub) VerifyGhanaCard(ctx context.Context, req ipapclient.GhanaCardRequest, public bool) (*domain.VerificationResponse, error) {
	v.calls++
	v.last = req
	v.public = public
	return v.resp, v.err
}

type successRecord struct {
	verificationID string
	cardNumber     string
	resp           domain.VerificationResponse
}

func newTestFlow(v *verifierStub) (*Flow, *CameraLease, *successRecord, *int) {
	camera := &CameraLease{}
	record := &successRecord{}
	cancels := 0
	flow := NewFlow(v, camera, Options{Public: true, UserEmail: "agent@ipap.test", UserPhone: "0240000000"}, Callbacks{
		OnSuccess: func(ctx context.Context, verificationID, ghanaCardNumber string, resp domain.VerificationResponse) error {
			record.verificationID = verificationID
			record.cardNumber = ghanaCardNumber
			record.resp = resp
			return nil
		},
		OnCancel: func(ctx context.Context) error {
			cancels++
			return nil
		},
	})
	return flow, camera, record, &cancels
}

func driveToReview(t *testing.T, flow *Flow) {
	t.Helper()
	ctx := context.Background()
	if _, err := flow.SetGhanaCardNumber("GHA-123456789-0"); err != nil {
		t.Fatalf("SetGhanaCardNumber: %v", err)
	}
	if _, err := flow.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := flow.Capture(ctx, "data:image/jpeg;base64,AAAA"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
}

func TestFlow_SuccessfulVerification(t *testing.T) {
	v := &verifierStub{resp: &domain.VerificationResponse{Success: true, VerificationID: "ver-1", Forenames: "Ama"}}
	flow, camera, record, _ := newTestFlow(v)
	ctx := context.Background()

	if flow.View().Step != 1 {
		t.Fatalf("expected step 1")
	}
	flow.SetGhanaCardNumber("GHA-123456789-0")
	view, _ := flow.Begin(ctx)
	if view.Step != 2 || !camera.Active() {
		t.Fatalf("expected capture with camera on, got %+v", view)
	}
	view, _ = flow.Capture(ctx, "selfie")
	if !view.ReviewOpen || camera.Active() {
		t.Fatalf("expected review with camera released, got %+v", view)
	}

	view, err := flow.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if view.Step != 3 || !view.Successful || !view.ContinueEnabled || view.RetryEnabled {
		t.Fatalf("unexpected result view %+v", view)
	}
	if v.last.GhanaCardNumber != "GHA-123456789-0" || v.last.SelfieImage != "selfie" || v.last.UserEmail != "agent@ipap.test" || !v.public {
		t.Fatalf("unexpected submission %+v public=%t", v.last, v.public)
	}

	if _, err := flow.Continue(ctx); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if record.verificationID != "ver-1" || record.cardNumber != "GHA-123456789-0" || record.resp.Forenames != "Ama" {
		t.Fatalf("unexpected success callback %+v", record)
	}
}

func TestFlow_FailedVerificationOnlyAllowsRetry(t *testing.T) {
	tests := []struct {
		name     string
		verifier *verifierStub
	}{
		{name: "negative match", verifier: &verifierStub{resp: &domain.VerificationResponse{Success: false, Message: "face mismatch"}}},
		{name: "upstream error", verifier: &verifierStub{err: errors.New("verifier unavailable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, camera, _, _ := newTestFlow(tt.verifier)
			ctx := context.Background()
			driveToReview(t, flow)

			view, err := flow.Confirm(ctx)
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if view.Step != 3 || view.Successful || view.ContinueEnabled || !view.RetryEnabled {
				t.Fatalf("unexpected failed view %+v", view)
			}
			if _, err := flow.Continue(ctx); !errors.Is(err, ErrVerificationFailed) {
				t.Fatalf("expected continue to be refused, got %v", err)
			}

			view, err = flow.Retry(ctx)
			if err != nil {
				t.Fatalf("Retry: %v", err)
			}
			if view.Phase != PhaseCapturing || view.HasImage || view.Successful || view.GhanaCardNumber != "GHA-123456789-0" {
				t.Fatalf("retry should keep only the card number, got %+v", view)
			}
			if !camera.Active() || camera.Starts() != 2 {
				t.Fatalf("retry should restart the camera, starts=%d", camera.Starts())
			}
		})
	}
}

func TestFlow_ConfirmRequiresCardNumber(t *testing.T) {
	v := &verifierStub{resp: &domain.VerificationResponse{Success: true}}
	flow, _, _, _ := newTestFlow(v)
	ctx := context.Background()

	flow.Begin(ctx)
	flow.Capture(ctx, "selfie")
	if _, err := flow.Confirm(ctx); !errors.Is(err, ErrGhanaCardRequired) {
		t.Fatalf("expected ErrGhanaCardRequired, got %v", err)
	}
	if v.calls != 0 {
		t.Fatalf("verifier must not be called without a card number")
	}
}

func TestFlow_FormatHintIsAdvisory(t *testing.T) {
	v := &verifierStub{resp: &domain.VerificationResponse{Success: true, VerificationID: "ver-2"}}
	flow, _, _, _ := newTestFlow(v)
	ctx := context.Background()

	view, _ := flow.SetGhanaCardNumber("123456789")
	if !view.FormatWarning || view.FormatHint != "GHA" {
		t.Fatalf("expected format warning, got %+v", view)
	}
	flow.Begin(ctx)
	flow.Capture(ctx, "selfie")
	if _, err := flow.Confirm(ctx); err != nil {
		t.Fatalf("an unprefixed number must still be submitted: %v", err)
	}
	if v.calls != 1 {
		t.Fatalf("expected one verifier call, got %d", v.calls)
	}
}

func TestFlow_RestoreSkipsCamera(t *testing.T) {
	v := &verifierStub{}
	flow, camera, record, _ := newTestFlow(v)
	ctx := context.Background()

	if err := flow.Restore("ver-old", domain.VerificationResponse{Success: true, VerificationID: "ver-old"}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	view := flow.View()
	if view.Step != 3 || !view.Successful || !view.Restored || camera.Starts() != 0 {
		t.Fatalf("expected restored success without camera, got %+v starts=%d", view, camera.Starts())
	}

	if _, err := flow.Continue(ctx); err != nil || record.verificationID != "ver-old" {
		t.Fatalf("Continue after restore: %v %+v", err, record)
	}

	view, err := flow.Redo(ctx)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if view.Step != 1 || view.Restored || view.Successful {
		t.Fatalf("redo should start over, got %+v", view)
	}
}

func TestFlow_PreviousReleasesCameraAndCancelsAtFirstStep(t *testing.T) {
	v := &verifierStub{}
	flow, camera, _, cancels := newTestFlow(v)
	ctx := context.Background()

	flow.Begin(ctx)
	if !camera.Active() {
		t.Fatalf("expected camera on during capture")
	}
	view, err := flow.Previous(ctx)
	if err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if view.Step != 1 || camera.Active() {
		t.Fatalf("expected step 1 with camera released, got %+v", view)
	}

	if _, err := flow.Previous(ctx); err != nil {
		t.Fatalf("Previous at step 1: %v", err)
	}
	if *cancels != 1 {
		t.Fatalf("expected OnCancel once, got %d", *cancels)
	}
}

func TestFlow_PreviousFromResultRestartsCamera(t *testing.T) {
	v := &verifierStub{resp: &domain.VerificationResponse{Success: false}}
	flow, camera, _, _ := newTestFlow(v)
	ctx := context.Background()
	driveToReview(t, flow)
	flow.Confirm(ctx)

	view, err := flow.Previous(ctx)
	if err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if view.Step != 2 || !camera.Active() {
		t.Fatalf("expected capture with camera on, got %+v", view)
	}
}

func TestFlow_CameraDeniedOffersRetry(t *testing.T) {
	v := &verifierStub{}
	flow, camera, _, _ := newTestFlow(v)
	ctx := context.Background()

	camera.Deny(errors.New("permission denied"))
	view, err := flow.Begin(ctx)
	if err != nil {
		t.Fatalf("camera denial must not fail the step: %v", err)
	}
	if view.Step != 2 || view.CameraError != "permission denied" || view.CameraActive {
		t.Fatalf("expected capture step with camera error, got %+v", view)
	}

	view, err = flow.RestartCamera(ctx)
	if err != nil {
		t.Fatalf("RestartCamera: %v", err)
	}
	if view.CameraError != "" || !view.CameraActive {
		t.Fatalf("expected camera to recover, got %+v", view)
	}

	view, err = flow.ReportCameraError("stream ended")
	if err != nil {
		t.Fatalf("ReportCameraError: %v", err)
	}
	if camera.Active() || view.CameraError != "stream ended" {
		t.Fatalf("expected lease released with error, got %+v", view)
	}
}

func TestFlow_CloseReleasesCamera(t *testing.T) {
	flow, camera, _, _ := newTestFlow(&verifierStub{})
	ctx := context.Background()
	flow.Begin(ctx)
	flow.Close()
	if camera.Active() {
		t.Fatalf("camera still held after Close")
	}
	if _, err := flow.Retake(ctx); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed, got %v", err)
	}
}

func TestState_TransitionsAreImmutable(t *testing.T) {
	start := NewState()
	capturing, err := start.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if start.Phase() != PhaseStart || capturing.Phase() != PhaseCapturing {
		t.Fatalf("Begin mutated its receiver")
	}
	if _, err := start.Capture("img"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := start.Back(); !errors.Is(err, ErrAtFirstStep) {
		t.Fatalf("expected ErrAtFirstStep, got %v", err)
	}
}

type blockingVerifier struct {
	entered chan struct{}
	release chan struct{}
	resp    *domain.VerificationResponse
}

func (v *blockingVerifier) VerifyGhanaCard(ctx context.Context, req ipapclient.GhanaCardRequest, public bool) (*domain.VerificationResponse, error) {
	close(v.entered)
	<-v.release
	return v.resp, nil
}

func TestFlow_CardNumberLockedWhileSubmitting(t *testing.T) {
	v := &blockingVerifier{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		resp:    &domain.VerificationResponse{Success: true, VerificationID: "ver-1"},
	}
	record := &successRecord{}
	flow := NewFlow(v, &CameraLease{}, Options{}, Callbacks{
		OnSuccess: func(ctx context.Context, verificationID, ghanaCardNumber string, resp domain.VerificationResponse) error {
			record.verificationID = verificationID
			record.cardNumber = ghanaCardNumber
			return nil
		},
	})
	driveToReview(t, flow)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := flow.Confirm(ctx)
		done <- err
	}()
	<-v.entered

	if _, err := flow.SetGhanaCardNumber("GHA-999999999-9"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while submitting, got %v", err)
	}
	close(v.release)
	if err := <-done; err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if _, err := flow.Continue(ctx); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if record.cardNumber != "GHA-123456789-0" || record.verificationID != "ver-1" {
		t.Fatalf("expected the submitted card to be handed off, got %+v", record)
	}
}
