package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/app"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/financing"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/otp"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/verification"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

type upstreamStub struct {
	mu         sync.Mutex
	seenTokens []string
}

func (u *upstreamStub) record(ctx context.Context) {
	token, _ := ipapclient.TokenFromContext(ctx)
	u.mu.Lock()
	u.seenTokens = append(u.seenTokens, token)
	u.mu.Unlock()
}

func (u *upstreamStub) CalculatePremiumFinancing(ctx context.Context, in domain.LoanInputs) (*domain.CalculationResult, error) {
	return &domain.CalculationResult{LoanAmount: in.PremiumAmount - in.InitialDeposit, NoOfInstallments: in.Duration}, nil
}

func (u *upstreamStub) DirectRepaymentSchedule(ctx context.Context, req ipapclient.ScheduleRequest) (*domain.RepaymentSchedule, error) {
	return &domain.RepaymentSchedule{}, nil
}

func (u *upstreamStub) RenderPDF(ctx context.Context, req ipapclient.PDFRequest) ([]byte, error) {
	return nil, ipapclient.ErrPDFRendererDisabled
}

func (u *upstreamStub) VerifyGhanaCard(ctx context.Context, req ipapclient.GhanaCardRequest, public bool) (*domain.VerificationResponse, error) {
	return &domain.VerificationResponse{Success: true, VerificationID: "ver-1"}, nil
}

func (u *upstreamStub) AutoDebitReference(ctx context.Context, pfID string) (string, error) {
	return "uniq-1", nil
}

func (u *upstreamStub) ConfirmAutoDebit(ctx context.Context, req ipapclient.ConfirmAutoDebitRequest) error {
	return nil
}

func (u *upstreamStub) ResendAutoDebitOTP(ctx context.Context, pfID string) error { return nil }

func (u *upstreamStub) VerifyPayment(ctx context.Context, paymentID string) (*domain.PaymentVerification, error) {
	return nil, &ipapclient.APIError{Op: "verify_payment", StatusCode: http.StatusBadRequest, Message: "pending"}
}

func (u *upstreamStub) VerifyPaymentByReference(ctx context.Context, refID string) (*domain.PaymentVerification, error) {
	return nil, &ipapclient.APIError{Op: "verify_payment_reference", StatusCode: http.StatusBadRequest, Message: "pending"}
}

func (u *upstreamStub) Login(ctx context.Context, req ipapclient.LoginRequest) (*ipapclient.LoginResult, error) {
	if req.Password != "secret" {
		return nil, &ipapclient.APIError{Op: "login", StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"}
	}
	return &ipapclient.LoginResult{Token: "upstream-" + req.Email, Agent: domain.Agent{ID: "agent-1", Email: req.Email}}, nil
}

func (u *upstreamStub) ProcessingFees(ctx context.Context) ([]domain.ProcessingFee, error) {
	u.record(ctx)
	return []domain.ProcessingFee{{LoanAmountRange: "Above GHS 0", FeePercentage: "3%"}}, nil
}

func (u *upstreamStub) SetupPremiumFinancing(ctx context.Context, req domain.RemoteSetupRequest) (*domain.RemoteSetupResult, error) {
	return &domain.RemoteSetupResult{}, nil
}

func (u *upstreamStub) ListCustomers(ctx context.Context, page, limit int, search string) (*domain.CustomerList, error) {
	return &domain.CustomerList{Page: page, Limit: limit}, nil
}

func (u *upstreamStub) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return &domain.Customer{ID: id}, nil
}

func (u *upstreamStub) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return &customer, nil
}

type testServer struct {
	handler  http.Handler
	sessions *SessionManager
	upstream *upstreamStub
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	upstream := &upstreamStub{}
	svc := app.NewService(upstream, store.NewMemoryStore(time.Hour), &rabbitmq.EventProducerFallback{}, app.NewLocalRateLimiter(), app.Options{})
	sessions := NewSessionManager("test-secret", time.Hour, "ipap_session", false)
	router := NewRouter(NewHandler(svc, sessions), sessions, []string{"http://localhost:3000"})
	return testServer{handler: router, sessions: sessions, upstream: upstream}
}

func (s testServer) token(t *testing.T, agentID string) string {
	t.Helper()
	token, _, err := s.sessions.Issue(domain.Agent{ID: agentID, Email: agentID + "@ipap.test"}, "upstream-"+agentID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func (s testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	if rec := srv.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/flows/direct", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/flows/direct", "not-a-jwt", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "ama@ipap.test", Password: "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "ipap_session" || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	srv.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}
	var agent domain.Agent
	if err := json.NewDecoder(me.Body).Decode(&agent); err != nil || agent.ID != "agent-1" {
		t.Fatalf("unexpected agent %+v err=%v", agent, err)
	}
}

func TestLogin_PassesUpstreamRejection(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "ama@ipap.test", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "Invalid credentials" {
		t.Fatalf("expected upstream message, got %q", body["error"])
	}
}

func TestSessionMiddleware_ForwardsUpstreamToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/financing/processing-fees", srv.token(t, "agent-7"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(srv.upstream.seenTokens) != 1 || srv.upstream.seenTokens[0] != "upstream-agent-7" {
		t.Fatalf("expected upstream token forwarded, got %v", srv.upstream.seenTokens)
	}
}

func TestSessionManager_RejectsExpiredSession(t *testing.T) {
	sessions := NewSessionManager("test-secret", time.Minute, "", false)
	token, _, err := sessions.Issue(domain.Agent{ID: "agent-1"}, "tok")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	sessions.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := sessions.Parse(token); err == nil {
		t.Fatalf("expected expired session to be rejected")
	}

	other := NewSessionManager("another-secret", time.Minute, "", false)
	if _, err := other.Parse(token); err == nil {
		t.Fatalf("expected session signed with another key to be rejected")
	}
}

func TestFlowRoutes(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "agent-1")

	if rec := srv.do(t, http.MethodGet, "/flows/express", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown variant: expected 400, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, "/flows/direct/start", token, app.StartFlowRequest{PremiumAmount: 5000}); rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", rec.Code)
	}

	rec := srv.do(t, http.MethodPut, "/flows/direct/loan", token, domain.LoanInputs{InitialDeposit: 6000, Duration: 3, PaymentFrequency: domain.FrequencyMonthly})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid selection: expected 422, got %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodPost, "/flows/direct/loan/confirm", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("confirm without calculation: expected 409, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/flows/direct/schedule", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("schedule without confirmed loan: expected 409, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/flows/direct", token, nil)
	var state domain.PaymentVerificationState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.LoanData == nil || state.LoanData.PremiumAmount != 5000 || state.LoanData.InitialDeposit != 6000 {
		t.Fatalf("expected invalid selection to be persisted, got %+v", state.LoanData)
	}

	if rec := srv.do(t, http.MethodDelete, "/flows/direct", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", rec.Code)
	}
}

func TestVerificationRoutes_ScopedToAgent(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.token(t, "agent-1")

	rec := srv.do(t, http.MethodPost, "/verifications", owner, app.StartVerificationRequest{Variant: domain.VariantDirect})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session app.VerificationSession
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := fmt.Sprintf("/verifications/%s", session.ID)

	if rec := srv.do(t, http.MethodGet, path, srv.token(t, "agent-2"), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other agent: expected 404, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, path+"/ghana-card", owner, app.VerificationAction{GhanaCardNumber: "GHA-000000000-1"}); rec.Code != http.StatusOK {
		t.Fatalf("set card: expected 200, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPost, path+"/begin", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("begin: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	json.NewDecoder(rec.Body).Decode(&session)
	if session.Phase != verification.PhaseCapturing || !session.CameraActive {
		t.Fatalf("expected capture with camera, got %+v", session.View)
	}
	if rec := srv.do(t, http.MethodPost, path+"/begin", owner, nil); rec.Code != http.StatusConflict {
		t.Fatalf("begin twice: expected 409, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, path+"/confirm", owner, nil); rec.Code != http.StatusConflict {
		t.Fatalf("confirm before capture: expected 409, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, path+"/wave", owner, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown action: expected 422, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/verifications/not-a-uuid", owner, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("bad id: expected 404, got %d", rec.Code)
	}
}

func TestPaymentRoutes_NotCompletedIsNotAnError(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "agent-1")

	if rec := srv.do(t, http.MethodPost, "/payments/verify?variant=direct", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("no payment: expected 409, got %d", rec.Code)
	}
	srv.do(t, http.MethodPut, "/flows/direct/payment", token, domain.PaymentData{PaymentID: "pay-1", Network: "mtn"})

	rec := srv.do(t, http.MethodGet, "/payments/instructions?variant=direct", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("instructions: expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/payments/verify?variant=direct", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var outcome app.PaymentOutcome
	json.NewDecoder(rec.Body).Decode(&outcome)
	if outcome.Verified || outcome.Message != "Transaction has not been completed yet." {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: app.ErrFlowNotFound, want: http.StatusNotFound},
		{name: "validation", err: fmt.Errorf("%w: bad", app.ErrInvalidInput), want: http.StatusUnprocessableEntity},
		{name: "otp incomplete", err: otp.ErrIncompleteCode, want: http.StatusUnprocessableEntity},
		{name: "transition", err: fmt.Errorf("%w: cannot begin", verification.ErrInvalidTransition), want: http.StatusConflict},
		{name: "not ready", err: financing.ErrNotReady, want: http.StatusConflict},
		{name: "rate limited", err: &app.RateLimitError{Scope: app.ScopeOTP, RetryAfterSeconds: 12}, want: http.StatusTooManyRequests},
		{name: "upstream", err: fmt.Errorf("wrapped: %w", &ipapclient.APIError{StatusCode: 500, Message: "boom"}), want: http.StatusBadGateway},
		{name: "pdf disabled", err: ipapclient.ErrPDFRendererDisabled, want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, &app.RateLimitError{Scope: app.ScopeOTP, RetryAfterSeconds: 12})
	if rec.Header().Get("Retry-After") != "12" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}

	rec = httptest.NewRecorder()
	writeServiceError(rec, &ipapclient.APIError{StatusCode: 502, Message: "Card service unavailable"})
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "Card service unavailable" {
		t.Fatalf("expected upstream message verbatim, got %q", body["error"])
	}
}
