package ipapclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrPDFRendererDisabled is returned when no renderer URL is configured.
var ErrPDFRendererDisabled = errors.New("pdf renderer is not configured")

// PDFCookie is injected into the headless browser so the printed page loads
// with the agent's session.
type PDFCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PDFRequest asks the renderer to load URL with Params and print it.
type PDFRequest struct {
	URL    string     `json:"url"`
	Params string     `json:"params"`
	Cookie *PDFCookie `json:"cookie,omitempty"`
}

// EncodeParams serializes v as base64-encoded JSON, the query parameter format
// the printable pages decode. The on-screen preview and the PDF use the same
// encoding so both render identical data.
func EncodeParams(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode print params: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeParams reverses EncodeParams.
func DecodeParams(encoded string, v interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode print params: %w", err)
	}
	return json.Unmarshal(raw, v)
}

// RenderPDF sends req to the headless-browser renderer and returns the PDF bytes.
func (c *Client) RenderPDF(ctx context.Context, req PDFRequest) ([]byte, error) {
	if strings.TrimSpace(c.PDFRendererURL) == "" {
		return nil, ErrPDFRendererDisabled
	}

	body, err := c.do(ctx, "render_pdf", http.MethodPost, c.PDFRendererURL, req)
	if err != nil {
		return nil, err
	}
	if len(body) < 4 || string(body[:4]) != "%PDF" {
		return nil, fmt.Errorf("pdf renderer returned a non-pdf body (%d bytes)", len(body))
	}
	return body, nil
}
