package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

var (
	ErrFlowClosed = errors.New("verification flow is closed")
	ErrBusy       = errors.New("verification is already being submitted")
)

type Verifier interface {
	VerifyGhanaCard(ctx context.Context, req ipapclient.GhanaCardRequest, public bool) (*domain.VerificationResponse, error)
}

// Callbacks connect the wizard to the flow that embeds it.
type Callbacks struct {
	OnSuccess func(ctx context.Context, verificationID, ghanaCardNumber string, resp domain.VerificationResponse) error
	OnCancel  func(ctx context.Context) error
}

// Options select the verifier endpoint and the contact details sent with a submission.
type Options struct {
	Public    bool
	UserEmail string
	UserPhone string
}

// View is the wizard as rendered. The captured image is never echoed back.
type View struct {
	Phase           Phase                        `json:"phase"`
	Step            int                          `json:"step"`
	GhanaCardNumber string                       `json:"ghanaCardNumber"`
	FormatHint      string                       `json:"formatHint"`
	FormatWarning   bool                         `json:"formatWarning"`
	HasImage        bool                         `json:"hasImage"`
	ReviewOpen      bool                         `json:"reviewOpen"`
	Submitting      bool                         `json:"submitting"`
	Successful      bool                         `json:"isVerificationSuccessful"`
	VerificationID  string                       `json:"verificationId,omitempty"`
	Response        *domain.VerificationResponse `json:"ghanaCardResponse,omitempty"`
	Message         string                       `json:"message,omitempty"`
	Restored        bool                         `json:"restored"`
	CameraActive    bool                         `json:"cameraActive"`
	CameraError     string                       `json:"cameraError,omitempty"`
	ContinueEnabled bool                         `json:"continueEnabled"`
	RetryEnabled    bool                         `json:"retryEnabled"`
}

// Flow runs the verification wizard: it applies State transitions and performs
// their side effects. The camera is held only while capturing.
type Flow struct {
	verifier Verifier
	camera   Camera
	opts     Options
	cb       Callbacks

	mu         sync.Mutex
	state      State
	cameraOn   bool
	submitting bool
	closed     bool
}

func NewFlow(verifier Verifier, camera Camera, opts Options, cb Callbacks) *Flow {
	return &Flow{
		verifier: verifier,
		camera:   camera,
		opts:     opts,
		cb:       cb,
		state:    NewState(),
	}
}

// Restore shows an earlier successful verification without touching the camera.
func (f *Flow) Restore(verificationID string, resp domain.VerificationResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	if f.state.Phase() != PhaseStart {
		return f.state.invalid("restore")
	}
	f.state = Restored(verificationID, resp)
	return nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() View {
	s := f.state
	return View{
		Phase:           s.Phase(),
		Step:            s.Step(),
		GhanaCardNumber: s.GhanaCardNumber(),
		FormatHint:      FormatHint,
		FormatWarning:   s.FormatWarning(),
		HasImage:        s.CapturedImage() != "",
		ReviewOpen:      s.ReviewOpen(),
		Submitting:      f.submitting,
		Successful:      s.Successful(),
		VerificationID:  s.VerificationID(),
		Response:        s.Response(),
		Message:         s.Message(),
		Restored:        s.IsRestored(),
		CameraActive:    f.cameraOn,
		CameraError:     s.CameraError(),
		ContinueEnabled: s.ContinueEnabled() && !f.submitting,
		RetryEnabled:    s.RetryEnabled() && !f.submitting,
	}
}

func (f *Flow) SetGhanaCardNumber(number string) (View, error) {
	return f.apply(func(s State) (State, error) { return s.WithGhanaCardNumber(number) })
}

// Begin hands off from step 1 to capture and acquires the camera.
func (f *Flow) Begin(ctx context.Context) (View, error) {
	return f.applyWithCamera(ctx, State.Begin)
}

func (f *Flow) Capture(ctx context.Context, image string) (View, error) {
	return f.applyWithCamera(ctx, func(s State) (State, error) { return s.Capture(image) })
}

func (f *Flow) Retake(ctx context.Context) (View, error) {
	return f.applyWithCamera(ctx, State.Retake)
}

func (f *Flow) Retry(ctx context.Context) (View, error) {
	return f.applyWithCamera(ctx, State.Retry)
}

func (f *Flow) Redo(ctx context.Context) (View, error) {
	return f.applyWithCamera(ctx, State.Redo)
}

// RestartCamera is the retry affordance after a camera failure during capture.
func (f *Flow) RestartCamera(ctx context.Context) (View, error) {
	return f.applyWithCamera(ctx, func(s State) (State, error) {
		if s.Phase() != PhaseCapturing {
			return State{}, s.invalid("restart camera")
		}
		return s.WithCameraError(""), nil
	})
}

// ReportCameraError records a camera failure seen by the browser and releases
// the lease so the next restart acquires it again.
func (f *Flow) ReportCameraError(msg string) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return View{}, ErrFlowClosed
	}
	if f.state.Phase() != PhaseCapturing {
		return View{}, f.state.invalid("report camera error")
	}
	if f.cameraOn {
		f.camera.Stop()
		f.cameraOn = false
	}
	f.state = f.state.WithCameraError(msg)
	return f.viewLocked(), nil
}

// Previous steps back. At step 1 the embedding flow's OnCancel runs instead.
func (f *Flow) Previous(ctx context.Context) (View, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return View{}, ErrFlowClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return View{}, ErrBusy
	}
	next, err := f.state.Back()
	if errors.Is(err, ErrAtFirstStep) {
		f.releaseCameraLocked()
		view := f.viewLocked()
		f.mu.Unlock()
		if f.cb.OnCancel != nil {
			if err := f.cb.OnCancel(ctx); err != nil {
				return view, err
			}
		}
		return view, nil
	}
	if err != nil {
		f.mu.Unlock()
		return View{}, err
	}
	f.commitLocked(ctx, next)
	view := f.viewLocked()
	f.mu.Unlock()
	return view, nil
}

// Confirm submits the staged selfie. Validation failures are returned without
// contacting the verifier; verifier failures end in a failed result.
func (f *Flow) Confirm(ctx context.Context) (View, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return View{}, ErrFlowClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return View{}, ErrBusy
	}
	if err := f.state.ReadyToSubmit(); err != nil {
		f.mu.Unlock()
		return View{}, err
	}
	req := ipapclient.GhanaCardRequest{
		GhanaCardNumber: f.state.GhanaCardNumber(),
		SelfieImage:     f.state.CapturedImage(),
		UserEmail:       f.opts.UserEmail,
		UserPhone:       f.opts.UserPhone,
	}
	f.submitting = true
	f.mu.Unlock()

	resp, verifyErr := f.verifier.VerifyGhanaCard(ctx, req, f.opts.Public)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if f.closed {
		return View{}, ErrFlowClosed
	}

	var next State
	var err error
	if verifyErr != nil {
		log.Printf("level=warn component=verification msg=\"ghana card verification failed\" public=%t err=%q", f.opts.Public, verifyErr.Error())
		next, err = f.state.Fail(verifyErr.Error())
	} else {
		next, err = f.state.Resolve(*resp)
	}
	if err != nil {
		return View{}, err
	}
	f.commitLocked(ctx, next)
	return f.viewLocked(), nil
}

// Continue hands a successful verification to the embedding flow.
func (f *Flow) Continue(ctx context.Context) (View, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return View{}, ErrFlowClosed
	}
	s := f.state
	if !s.ContinueEnabled() {
		f.mu.Unlock()
		return View{}, fmt.Errorf("%w: continue requires a successful result", ErrVerificationFailed)
	}
	view := f.viewLocked()
	f.mu.Unlock()

	resp := s.Response()
	if resp == nil {
		resp = &domain.VerificationResponse{Success: true, VerificationID: s.VerificationID()}
	}
	if f.cb.OnSuccess != nil {
		if err := f.cb.OnSuccess(ctx, s.VerificationID(), s.GhanaCardNumber(), *resp); err != nil {
			return view, err
		}
	}
	return view, nil
}

// Close tears the wizard down and releases the camera.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCameraLocked()
	f.closed = true
}

func (f *Flow) apply(transition func(State) (State, error)) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return View{}, ErrFlowClosed
	}
	// The submitted card number must stay the one the verifier sees.
	if f.submitting {
		return View{}, ErrBusy
	}
	next, err := transition(f.state)
	if err != nil {
		return View{}, err
	}
	f.state = next
	return f.viewLocked(), nil
}

func (f *Flow) applyWithCamera(ctx context.Context, transition func(State) (State, error)) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return View{}, ErrFlowClosed
	}
	if f.submitting {
		return View{}, ErrBusy
	}
	next, err := transition(f.state)
	if err != nil {
		return View{}, err
	}
	f.commitLocked(ctx, next)
	return f.viewLocked(), nil
}

// commitLocked installs next and brings the camera in line with it: held while
// capturing, released in every other phase.
func (f *Flow) commitLocked(ctx context.Context, next State) {
	if next.Phase() != PhaseCapturing {
		f.releaseCameraLocked()
		f.state = next
		return
	}
	if !f.cameraOn && next.CameraError() == "" {
		if err := f.camera.Start(ctx); err != nil {
			log.Printf("level=warn component=verification msg=\"camera unavailable\" err=%q", err.Error())
			next = next.WithCameraError(err.Error())
		} else {
			f.cameraOn = true
		}
	}
	f.state = next
}

func (f *Flow) releaseCameraLocked() {
	if f.cameraOn {
		f.camera.Stop()
		f.cameraOn = false
	}
}
