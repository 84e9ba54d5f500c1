/**
 * @description
 * This package contains the core orchestration of the agent portal. It owns the
 * per-agent wizard sessions, reads and writes the persisted payment flow state,
 * and publishes portal events.
 *
 * @dependencies
 * - internal/store: Persisted PaymentVerificationState.
 * - pkg/ipapclient: The IPAP REST backend.
 * - pkg/rabbitmq: Portal event publishing.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/financing"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/otp"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/verification"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

const (
	defaultEventsExchange = "ipap.portal.events"
	publishTimeout        = 5 * time.Second
)

// ErrInvalidInput marks request data the portal refuses before calling upstream.
var ErrInvalidInput = errors.New("invalid input")

// Upstream is the slice of the IPAP backend the portal uses.
type Upstream interface {
	financing.Calculator
	financing.ScheduleFetcher
	financing.PDFRenderer
	verification.Verifier
	otp.AutoDebitClient
	PaymentVerifier

	Login(ctx context.Context, req ipapclient.LoginRequest) (*ipapclient.LoginResult, error)
	ProcessingFees(ctx context.Context) ([]domain.ProcessingFee, error)
	SetupPremiumFinancing(ctx context.Context, req domain.RemoteSetupRequest) (*domain.RemoteSetupResult, error)
	ListCustomers(ctx context.Context, page, limit int, search string) (*domain.CustomerList, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
}

// PaymentVerifier mirrors approval.PaymentVerifier so Upstream stays one interface.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentID string) (*domain.PaymentVerification, error)
	VerifyPaymentByReference(ctx context.Context, refID string) (*domain.PaymentVerification, error)
}

type Options struct {
	PortalBaseURL      string
	EventsExchange     string
	OTPLength          int
	OTPCooldownSeconds int
	VerifyRateLimit    int
	OTPRateLimit       int
	OTPTicker          otp.TickerFunc
}

// Service holds the dependencies for the portal's business logic.
type Service struct {
	upstream  Upstream
	states    store.StateStore
	publisher rabbitmq.Publisher
	limiter   RateLimiter
	opts      Options

	steps         *Registry[store.FlowKey, *financing.CalculationStep]
	verifications *Registry[uuid.UUID, *verificationSession]
	otps          *Registry[uuid.UUID, *otpSession]
}

// NewService creates a new portal service.
func NewService(upstream Upstream, states store.StateStore, publisher rabbitmq.Publisher, limiter RateLimiter, opts Options) *Service {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	if opts.EventsExchange == "" {
		opts.EventsExchange = defaultEventsExchange
	}
	return &Service{
		upstream:  upstream,
		states:    states,
		publisher: publisher,
		limiter:   limiter,
		opts:      opts,
		steps: NewRegistry[store.FlowKey](func(step *financing.CalculationStep) {
			step.Close()
		}),
		verifications: NewRegistry[uuid.UUID](func(session *verificationSession) {
			session.flow.Close()
		}),
		otps: NewRegistry[uuid.UUID](func(session *otpSession) {
			session.confirmation.Countdown().Stop()
		}),
	}
}

func flowKey(agentID string, variant domain.FlowVariant) (store.FlowKey, error) {
	key := store.FlowKey{AgentID: agentID, Variant: variant}
	if err := key.Validate(); err != nil {
		return store.FlowKey{}, err
	}
	return key, nil
}

// Login signs the agent in upstream.
func (s *Service) Login(ctx context.Context, email, password string) (*ipapclient.LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	return s.upstream.Login(ctx, ipapclient.LoginRequest{Email: email, Password: password})
}

// Logout drops every session and persisted flow of the agent.
func (s *Service) Logout(ctx context.Context, agentID string) error {
	steps := s.steps.RemoveOwner(agentID)
	verifications := s.verifications.RemoveOwner(agentID)
	otps := s.otps.RemoveOwner(agentID)
	log.Printf("level=info component=app msg=\"agent logged out\" agent_id=%s steps=%d verifications=%d otps=%d", agentID, steps, verifications, otps)

	if err := s.states.ClearAgent(ctx, agentID); err != nil {
		return fmt.Errorf("failed to clear agent flows: %w", err)
	}
	return nil
}

// SweepIdleSessions releases wizard sessions unused for longer than idle.
func (s *Service) SweepIdleSessions(idle time.Duration) int {
	return s.steps.Sweep(idle) + s.verifications.Sweep(idle) + s.otps.Sweep(idle)
}

// PurgeExpiredFlows removes persisted flow states past their lifetime.
func (s *Service) PurgeExpiredFlows(ctx context.Context) (int, error) {
	return s.states.PurgeExpired(ctx)
}

func (s *Service) ListCustomers(ctx context.Context, page, limit int, search string) (*domain.CustomerList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.upstream.ListCustomers(ctx, page, limit, search)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.upstream.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.FirstName == "" || customer.LastName == "" || customer.Phone == "" {
		return nil, fmt.Errorf("%w: first name, last name and phone are required", ErrInvalidInput)
	}
	return s.upstream.CreateCustomer(ctx, customer)
}

// publish sends a portal event. Broker failures are logged and never fail the caller.
func (s *Service) publish(ctx context.Context, routingKey, agentID string, variant domain.FlowVariant, data interface{}) {
	event := rabbitmq.NewEvent(routingKey, agentID, string(variant), data)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.opts.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s agent_id=%s err=%v", routingKey, agentID, err)
	}
}

// limit enforces a rate limit scope. Limiter outages let the request through.
func (s *Service) limit(ctx context.Context, scope, agentID string, perMinute int) error {
	err := consume(ctx, s.limiter, scope, agentID, perMinute)
	var rlErr *RateLimitError
	if err != nil && !errors.As(err, &rlErr) {
		log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	return err
}
