package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/app"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/approval"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/financing"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/otp"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/verification"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

var notFoundErrors = []error{
	app.ErrFlowNotFound,
	store.ErrStateNotFound,
}

var validationErrors = []error{
	app.ErrInvalidInput,
	domain.ErrInvalidVariant,
	domain.ErrInvalidFrequency,
	store.ErrInvalidKey,
	verification.ErrGhanaCardRequired,
	verification.ErrImageRequired,
	otp.ErrIncompleteCode,
	otp.ErrCellOutOfRange,
	otp.ErrInvalidCell,
}

var conflictErrors = []error{
	verification.ErrInvalidTransition,
	verification.ErrVerificationFailed,
	verification.ErrFlowClosed,
	verification.ErrBusy,
	otp.ErrReferenceNotLoaded,
	otp.ErrResendCoolingDown,
	otp.ErrClosed,
	otp.ErrBusy,
	approval.ErrNoPayment,
	approval.ErrBusy,
	financing.ErrNotReady,
	financing.ErrLoanNotFinalized,
	financing.ErrScheduleNotLoaded,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError maps service errors onto HTTP responses. Upstream messages
// are passed through verbatim.
func writeServiceError(w http.ResponseWriter, err error) {
	var rlErr *app.RateLimitError
	if errors.As(err, &rlErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds))
		writeErrorMessage(w, http.StatusTooManyRequests, rlErr.Error())
		return
	}

	var apiErr *ipapclient.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.StatusCode == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error()
		}
		log.Printf("level=warn component=api msg=\"upstream request failed\" op=%s status=%d", apiErr.Op, apiErr.StatusCode)
		writeErrorMessage(w, status, message)
		return
	}

	switch {
	case matchesAny(err, notFoundErrors):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case matchesAny(err, validationErrors):
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case matchesAny(err, conflictErrors):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, ipapclient.ErrPDFRendererDisabled):
		writeErrorMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("level=error component=api msg=\"request failed\" err=%v", err)
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeErrorMessage is a helper for writing JSON error responses.
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
