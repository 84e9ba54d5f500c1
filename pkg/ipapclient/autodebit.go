package ipapclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ConfirmAutoDebitRequest confirms an auto-debit mandate with the customer's OTP.
type ConfirmAutoDebitRequest struct {
	UniqRefID string `json:"uniq_ref_id"`
	AuthCode  string `json:"auth_code"`
	PfID      string `json:"pfId"`
}

type resendAutoDebitRequest struct {
	PfID string `json:"pfId"`
}

type referenceResponse struct {
	UniqRefID string `json:"uniq_ref_id"`
	RefID     string `json:"refId"`
}

// AutoDebitReference fetches the mandate reference id tied to a financing record.
func (c *Client) AutoDebitReference(ctx context.Context, pfID string) (string, error) {
	var out referenceResponse
	path := fmt.Sprintf(pathAutoDebitReference, url.PathEscape(pfID))
	if err := c.doJSON(ctx, "autodebit_reference", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	ref := strings.TrimSpace(out.UniqRefID)
	if ref == "" {
		ref = strings.TrimSpace(out.RefID)
	}
	if ref == "" {
		return "", fmt.Errorf("autodebit reference missing for financing %s", pfID)
	}
	return ref, nil
}

// ConfirmAutoDebit submits the OTP for an auto-debit mandate.
func (c *Client) ConfirmAutoDebit(ctx context.Context, req ConfirmAutoDebitRequest) error {
	return c.doJSON(ctx, "autodebit_confirm", http.MethodPost, pathAutoDebitConfirm, req, nil)
}

// ResendAutoDebitOTP asks the backend to send a fresh OTP for the mandate.
func (c *Client) ResendAutoDebitOTP(ctx context.Context, pfID string) error {
	return c.doJSON(ctx, "autodebit_resend", http.MethodPost, pathAutoDebitResend, resendAutoDebitRequest{PfID: pfID}, nil)
}
