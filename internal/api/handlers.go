/**
 * @description
 * This file contains the HTTP handlers for the agent portal. Handlers parse the
 * request, call the application service, and write the JSON response.
 *
 * @dependencies
 * - internal/app: The portal service.
 * - github.com/go-chi/chi/v5: URL parameters.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/app"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

const maxRequestBodyBytes = 12 << 20

// Handler holds the application service that handlers will use.
type Handler struct {
	service  *app.Service
	sessions *SessionManager
}

// NewHandler creates a new instance of Handler.
func NewHandler(service *app.Service, sessions *SessionManager) *Handler {
	return &Handler{service: service, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Agent     domain.Agent `json:"agent"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type feeRequest struct {
	PremiumAmount float64 `json:"premiumAmount"`
}

type openOTPRequest struct {
	Variant domain.FlowVariant `json:"variant"`
	PfID    string             `json:"pfId"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	token, expiresAt, err := h.sessions.Issue(result.Agent, result.Token)
	if err != nil {
		log.Printf("level=error component=api endpoint=login msg=\"session issue failed\" err=%v", err)
		writeErrorMessage(w, http.StatusInternalServerError, "Unable to start session")
		return
	}
	h.sessions.SetCookie(w, token, expiresAt)
	writeJSON(w, http.StatusOK, loginResponse{Agent: result.Agent, Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return
	}
	if err := h.service.Logout(r.Context(), agent.ID); err != nil {
		log.Printf("level=warn component=api endpoint=logout agent_id=%s err=%v", agent.ID, err)
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *Handler) handleProcessingFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.service.ProcessingFees(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (h *Handler) handleProcessingFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	quote, err := h.service.ProcessingFee(r.Context(), req.PremiumAmount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req app.EstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	estimate, err := h.service.Estimate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (h *Handler) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	state, err := h.service.FlowState(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleClearFlow(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	if err := h.service.ClearFlow(r.Context(), agent.ID, variant); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	var req app.StartFlowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	state, err := h.service.StartFlow(r.Context(), agent.ID, variant, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *Handler) handleSavePayment(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	var payment domain.PaymentData
	if !decodeJSON(w, r, &payment) {
		return
	}
	state, err := h.service.SavePaymentData(r.Context(), agent.ID, variant, payment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	view, err := h.service.LoanView(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	var inputs domain.LoanInputs
	if !decodeJSON(w, r, &inputs) {
		return
	}
	view, err := h.service.UpdateLoan(r.Context(), agent.ID, variant, inputs)
	if errors.Is(err, app.ErrInvalidInput) {
		// The selection is kept; the view shows why continue is disabled.
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			Error string      `json:"error"`
			View  interface{} `json:"view"`
		}{Error: err.Error(), View: view})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleRetryLoan(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	view, err := h.service.RetryLoan(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleConfirmLoan(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	loan, err := h.service.ConfirmLoan(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	view, err := h.service.Schedule(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSchedulePDF(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	var cookie *ipapclient.PDFCookie
	if c, err := r.Cookie(h.sessions.CookieName()); err == nil && c.Value != "" {
		cookie = &ipapclient.PDFCookie{Name: c.Name, Value: c.Value}
	}
	pdf, err := h.service.SchedulePDF(r.Context(), agent.ID, variant, cookie)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="repayment-schedule.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (h *Handler) handleRemoteSetup(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndVariant(w, r)
	if !ok {
		return
	}
	result, err := h.service.RemoteSetup(r.Context(), agent, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStartVerification(w http.ResponseWriter, r *http.Request) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return
	}
	var req app.StartVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserEmail == "" {
		req.UserEmail = agent.Email
	}
	if req.UserPhone == "" {
		req.UserPhone = agent.Phone
	}
	session, err := h.service.StartVerification(r.Context(), agent.ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Verification(r.Context(), agent.ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleCloseVerification(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseVerification(r.Context(), agent.ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVerificationAction(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	var body app.VerificationAction
	if !decodeOptionalJSON(w, r, &body) {
		return
	}
	session, err := h.service.VerificationAction(r.Context(), agent.ID, id, chi.URLParam(r, "action"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handlePaymentInstructions(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndQueryVariant(w, r)
	if !ok {
		return
	}
	view, err := h.service.PaymentInstructions(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	agent, variant, ok := agentAndQueryVariant(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.VerifyPayment(r.Context(), agent.ID, variant)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleOpenOTP(w http.ResponseWriter, r *http.Request) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return
	}
	var req openOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.OpenOTP(r.Context(), agent.ID, req.Variant, req.PfID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetOTP(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	session, err := h.service.OTP(r.Context(), agent.ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSetOTPCode(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	var code app.OTPCode
	if !decodeJSON(w, r, &code) {
		return
	}
	session, err := h.service.SetOTPCode(r.Context(), agent.ID, id, code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleConfirmOTP(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	session, err := h.service.ConfirmOTP(r.Context(), agent.ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	session, err := h.service.ResendOTP(r.Context(), agent.ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleCloseOTP(w http.ResponseWriter, r *http.Request) {
	agent, id, ok := agentAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseOTP(r.Context(), agent.ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	customers, err := h.service.ListCustomers(r.Context(), page, limit, strings.TrimSpace(query.Get("search")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if !decodeJSON(w, r, &customer) {
		return
	}
	created, err := h.service.CreateCustomer(r.Context(), customer)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func requireAgent(w http.ResponseWriter, r *http.Request) (domain.Agent, bool) {
	agent, ok := GetAgent(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "Authorization required")
	}
	return agent, ok
}

func agentAndVariant(w http.ResponseWriter, r *http.Request) (domain.Agent, domain.FlowVariant, bool) {
	return agentWithVariant(w, r, chi.URLParam(r, "variant"))
}

func agentAndQueryVariant(w http.ResponseWriter, r *http.Request) (domain.Agent, domain.FlowVariant, bool) {
	return agentWithVariant(w, r, r.URL.Query().Get("variant"))
}

func agentWithVariant(w http.ResponseWriter, r *http.Request, raw string) (domain.Agent, domain.FlowVariant, bool) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return domain.Agent{}, "", false
	}
	variant, err := domain.ParseFlowVariant(raw)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return domain.Agent{}, "", false
	}
	return agent, variant, true
}

func agentAndID(w http.ResponseWriter, r *http.Request) (domain.Agent, uuid.UUID, bool) {
	agent, ok := requireAgent(w, r)
	if !ok {
		return domain.Agent{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorMessage(w, http.StatusNotFound, app.ErrFlowNotFound.Error())
		return domain.Agent{}, uuid.Nil, false
	}
	return agent, id, true
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
