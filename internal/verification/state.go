/**
 * @description
 * State is the Ghana Card verification wizard as an explicit phase machine.
 * Values are immutable: every transition returns a new State or an error and
 * never mutates the receiver. Side effects (camera, network, callbacks) live in
 * Flow; this file only decides which moves are legal.
 *
 * Steps shown to the agent are fixed: Start is step 1, Capturing and Reviewing
 * share step 2, Result is step 3.
 */

package verification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseCapturing Phase = "capturing"
	PhaseReviewing Phase = "reviewing"
	PhaseResult    Phase = "result"
)

// FormatHint is the prefix Ghana Card numbers normally carry. It is shown to the
// agent but never enforced; the backend is the authority on format.
const FormatHint = "GHA"

var (
	ErrInvalidTransition  = errors.New("invalid verification transition")
	ErrGhanaCardRequired  = errors.New("ghana card number is required")
	ErrImageRequired      = errors.New("captured image is required")
	ErrAtFirstStep        = errors.New("verification is already at the first step")
	ErrVerificationFailed = errors.New("verification was not successful")
)

type State struct {
	phase           Phase
	ghanaCardNumber string
	capturedImage   string
	successful      bool
	response        *domain.VerificationResponse
	verificationID  string
	message         string
	restored        bool
	cameraError     string
}

// NewState returns a wizard at step 1.
func NewState() State {
	return State{phase: PhaseStart}
}

// Restored returns a wizard that shows a verification completed in an earlier
// session as a success.
func Restored(verificationID string, resp domain.VerificationResponse) State {
	return State{
		phase:          PhaseResult,
		successful:     true,
		response:       &resp,
		verificationID: verificationID,
		restored:       true,
	}
}

func (s State) Phase() Phase { return s.phase }
func (s State) GhanaCardNumber() string { return s.ghanaCardNumber }
func (s State) CapturedImage() string { return s.capturedImage }
func (s State) Successful() bool { return s.phase == PhaseResult && s.successful }
func (s State) VerificationID() string { return s.verificationID }
func (s State) Message() string { return s.message }
func (s State) IsRestored() bool { return s.restored }
func (s State) CameraError() string { return s.cameraError }
func (s State) ReviewOpen() bool { return s.phase == PhaseReviewing }
func (s State) Response() *domain.VerificationResponse {
	if s.response == nil {
		return nil
	}
	resp := *s.response
	return &resp
}

// Step maps the phase onto the 1/2/3 numbering shown in the wizard header.
func (s State) Step() int {
	switch s.phase {
	case PhaseCapturing, PhaseReviewing:
		return 2
	case PhaseResult:
		return 3
	default:
		return 1
	}
}

// ContinueEnabled is only true on a successful result.
func (s State) ContinueEnabled() bool { return s.Successful() }

// RetryEnabled is only true on a failed result.
func (s State) RetryEnabled() bool { return s.phase == PhaseResult && !s.successful }

// FormatWarning reports a card number that does not carry the usual prefix.
func (s State) FormatWarning() bool {
	number := strings.ToUpper(strings.TrimSpace(s.ghanaCardNumber))
	return number != "" && !strings.HasPrefix(number, FormatHint)
}

func (s State) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, s.phase)
}

func (s State) WithGhanaCardNumber(number string) (State, error) {
	if s.phase == PhaseResult {
		return State{}, s.invalid("edit card number")
	}
	next := s
	next.ghanaCardNumber = strings.TrimSpace(number)
	return next, nil
}

func (s State) WithCameraError(msg string) State {
	next := s
	next.cameraError = msg
	return next
}

func (s State) Begin() (State, error) {
	if s.phase != PhaseStart {
		return State{}, s.invalid("begin")
	}
	next := s
	next.phase = PhaseCapturing
	next.cameraError = ""
	return next, nil
}

func (s State) Capture(image string) (State, error) {
	if s.phase != PhaseCapturing {
		return State{}, s.invalid("capture")
	}
	if strings.TrimSpace(image) == "" {
		return State{}, ErrImageRequired
	}
	next := s
	next.phase = PhaseReviewing
	next.capturedImage = image
	next.cameraError = ""
	return next, nil
}

func (s State) Retake() (State, error) {
	if s.phase != PhaseReviewing {
		return State{}, s.invalid("retake")
	}
	next := s
	next.phase = PhaseCapturing
	next.capturedImage = ""
	return next, nil
}

// ReadyToSubmit checks the local preconditions of a submission.
func (s State) ReadyToSubmit() error {
	if s.phase != PhaseReviewing {
		return s.invalid("confirm")
	}
	if s.ghanaCardNumber == "" {
		return ErrGhanaCardRequired
	}
	if s.capturedImage == "" {
		return ErrImageRequired
	}
	return nil
}

// Resolve records the verifier's answer and moves to the result step.
func (s State) Resolve(resp domain.VerificationResponse) (State, error) {
	if s.phase != PhaseReviewing {
		return State{}, s.invalid("resolve")
	}
	next := s
	next.phase = PhaseResult
	next.successful = resp.Success
	next.response = &resp
	next.verificationID = resp.VerificationID
	next.message = resp.Message
	return next, nil
}

// Fail moves to a failed result when the verifier could not be reached.
func (s State) Fail(msg string) (State, error) {
	if s.phase != PhaseReviewing {
		return State{}, s.invalid("fail")
	}
	next := s
	next.phase = PhaseResult
	next.successful = false
	next.response = nil
	next.verificationID = ""
	next.message = msg
	return next, nil
}

// Retry returns a failed result to capture. The card number is kept.
func (s State) Retry() (State, error) {
	if !s.RetryEnabled() {
		return State{}, s.invalid("retry")
	}
	next := s.clearOutcome()
	next.phase = PhaseCapturing
	return next, nil
}

// Redo leaves a successful result, restored or not, and starts over.
func (s State) Redo() (State, error) {
	if !s.Successful() {
		return State{}, s.invalid("redo")
	}
	next := s.clearOutcome()
	next.phase = PhaseStart
	next.restored = false
	return next, nil
}

// Back moves one step back. Step 1 has nowhere to go; callers treat
// ErrAtFirstStep as a cancel.
func (s State) Back() (State, error) {
	switch s.phase {
	case PhaseStart:
		return State{}, ErrAtFirstStep
	case PhaseCapturing, PhaseReviewing:
		next := s
		next.phase = PhaseStart
		next.capturedImage = ""
		next.cameraError = ""
		return next, nil
	default:
		next := s.clearOutcome()
		next.phase = PhaseCapturing
		next.restored = false
		return next, nil
	}
}

func (s State) clearOutcome() State {
	next := s
	next.capturedImage = ""
	next.successful = false
	next.response = nil
	next.verificationID = ""
	next.message = ""
	next.cameraError = ""
	return next
}
