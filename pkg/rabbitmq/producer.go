/**
 * @description
 * This package publishes portal domain events to RabbitMQ. Downstream services
 * (notifications, analytics, the policy back office) bind to the topic exchange
 * by routing key.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 * - github.com/google/uuid: Event ids.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys of portal events.
const (
	RoutingVerificationCompleted = "verification.completed"
	RoutingLoanConfirmed         = "financing.loan.confirmed"
	RoutingPaymentVerified       = "payment.verified"
	RoutingAutoDebitConfirmed    = "financing.autodebit.confirmed"
)

// Event is the envelope every portal event is published in.
type Event struct {
	EventID    uuid.UUID   `json:"event_id"`
	Type       string      `json:"type"`
	AgentID    string      `json:"agent_id"`
	Variant    string      `json:"variant,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

func NewEvent(routingKey, agentID, variant string, data interface{}) Event {
	return Event{
		EventID:    uuid.New(),
		Type:       routingKey,
		AgentID:    agentID,
		Variant:    variant,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type VerificationCompleted struct {
	VerificationID  string `json:"verification_id"`
	GhanaCardNumber string `json:"ghana_card_number"`
	Restored        bool   `json:"restored"`
}

type LoanConfirmed struct {
	PremiumAmount      float64 `json:"premium_amount"`
	InitialDeposit     float64 `json:"initial_deposit"`
	LoanAmount         float64 `json:"loan_amount"`
	Duration           int     `json:"duration"`
	PaymentFrequency   string  `json:"payment_frequency"`
	NoOfInstallments   int     `json:"noof_installments"`
	RegularInstallment float64 `json:"regular_installment"`
	TotalRepayment     float64 `json:"total_repayment"`
}

type PaymentVerified struct {
	PaymentID     string `json:"payment_id,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	FinancingID   string `json:"pf_id,omitempty"`
}

type AutoDebitConfirmed struct {
	FinancingID string `json:"pf_id"`
	Confirmed   bool   `json:"confirmed"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) Close() {}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish sends body as JSON to a durable topic exchange. A failed channel is
// reopened once before giving up.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, exchange, routingKey, jsonBody)
	if err == nil {
		return nil
	}
	log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
	if p.conn == nil {
		return err
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.publishLocked(ctx, exchange, routingKey, jsonBody)
}

func (p *EventProducer) publishLocked(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := p.channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
