/**
 * @description
 * This package provides a client for the IPAP REST backend. The backend owns all
 * financial computation, Ghana Card matching and persistence; the portal only
 * calls it. Responses are normalized here into explicit structs so the rest of
 * the service never deals with loosely-typed upstream records.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package ipapclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Backend paths. These are part of the compatibility surface with the IPAP API.
const (
	pathAgentLogin          = "/auth/agent/login"
	pathCalculate           = "/premium-financing/calculate"
	pathProcessingFees      = "/premium-financing/processing-fees"
	pathDirectSchedule      = "/premium-financing/repayment-schedule/direct"
	pathFinancingSetup      = "/premium-financing/setup"
	pathGhanaCardPublic     = "/ghana-card/verify/public"
	pathGhanaCardUser       = "/ghana-card/verify"
	pathAutoDebitReference  = "/premium-financing/%s/auto-debit/reference"
	pathAutoDebitConfirm    = "/premium-financing/auto-debit/confirm"
	pathAutoDebitResend     = "/premium-financing/auto-debit/resend"
	pathPaymentVerify       = "/payments/%s/verify"
	pathPaymentVerifyByRef  = "/payments/verify-reference"
	pathCustomers           = "/customers"
	pathCustomer            = "/customers/%s"
	defaultTimeout          = 30 * time.Second
	maxResponseBodyBytes    = 10 << 20
	apiKeyHeader            = "x-api-key"
	contentTypeJSON         = "application/json"
	authorizationBearerTmpl = "Bearer %s"
)

// Client is a client for the IPAP REST backend.
type Client struct {
	BaseURL        string
	APIKey         string
	PDFRendererURL string
	HTTPClient     *http.Client
}

// NewClient creates a new IPAP API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type tokenContextKey struct{}

// WithToken attaches the agent's upstream access token to ctx. Calls made with
// that context are sent as the agent; calls without one go out unauthenticated.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the upstream token attached by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok && token != ""
}

// APIError is a non-2xx response from the IPAP backend.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ipap api error: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("ipap api error: %s", e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
	Errors  []struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	} `json:"errors"`
}

// doJSON executes a request and decodes a JSON response into out. Responses
// wrapped in a {"data": ...} envelope are unwrapped first.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload, out interface{}) error {
	body, err := c.do(ctx, op, method, c.BaseURL+path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(body), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, url string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if c.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.APIKey)
	}
	if token, ok := TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", fmt.Sprintf(authorizationBearerTmpl, token))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(bodyBytes)}
		log.Printf("level=warn component=ipap_client op=%s status=%d msg=%q", op, resp.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	return bodyBytes, nil
}

func errorMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}
	if msg := rawText(parsed.Message); msg != "" {
		return msg
	}
	if msg := rawText(parsed.Error); msg != "" {
		return msg
	}
	if len(parsed.Errors) > 0 {
		if parsed.Errors[0].Detail != "" {
			return parsed.Errors[0].Detail
		}
		return parsed.Errors[0].Title
	}
	return ""
}

// rawText reads a message that may be a string or a list of strings.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func unwrapData(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	data, ok := envelope["data"]
	if !ok {
		return body
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return body
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return body
	}
	return trimmed
}
