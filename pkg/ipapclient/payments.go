package ipapclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

type verifyByReferenceRequest struct {
	RefID string `json:"refId"`
}

type rawPaymentVerification struct {
	Success       *bool     `json:"success"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	TransactionID string    `json:"transactionId"`
	Amount        flexFloat `json:"amount"`
	PaidAt        string    `json:"paidAt"`
	PaymentID     string    `json:"paymentId"`
	ReferenceID   string    `json:"referenceId"`
	PfID          string    `json:"pfId"`
	Provider      string    `json:"providerMessage"`
}

// VerifyPayment checks a payment by its payment id.
func (c *Client) VerifyPayment(ctx context.Context, paymentID string) (*domain.PaymentVerification, error) {
	var raw rawPaymentVerification
	path := fmt.Sprintf(pathPaymentVerify, url.PathEscape(paymentID))
	if err := c.doJSON(ctx, "payment_verify", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return normalizePayment(raw), nil
}

// VerifyPaymentByReference checks a payment by its provider reference id.
func (c *Client) VerifyPaymentByReference(ctx context.Context, refID string) (*domain.PaymentVerification, error) {
	var raw rawPaymentVerification
	if err := c.doJSON(ctx, "payment_verify_reference", http.MethodPost, pathPaymentVerifyByRef, verifyByReferenceRequest{RefID: refID}, &raw); err != nil {
		return nil, err
	}
	return normalizePayment(raw), nil
}

func normalizePayment(raw rawPaymentVerification) *domain.PaymentVerification {
	success := false
	if raw.Success != nil {
		success = *raw.Success
	} else {
		switch strings.ToLower(raw.Status) {
		case "success", "successful", "completed", "paid":
			success = true
		}
	}
	return &domain.PaymentVerification{
		Success:         success,
		Status:          raw.Status,
		Message:         raw.Message,
		TransactionID:   raw.TransactionID,
		Amount:          float64(raw.Amount),
		PaidAt:          raw.PaidAt,
		PaymentID:       raw.PaymentID,
		ReferenceID:     raw.ReferenceID,
		FinancingID:     raw.PfID,
		ProviderMessage: raw.Provider,
	}
}
