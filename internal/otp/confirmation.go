/**
 * @description
 * Confirmation is the auto-debit OTP modal chained after a verified premium
 * financing payment. It loads the mandate reference, collects the code cell by
 * cell, confirms it upstream and offers a rate-limited resend.
 *
 * @notes
 * - The payment was already accepted when this opens. Confirm and Close both end
 *   in the same continuation; the OTP is a secondary gate.
 * - Every upstream call is user initiated. Nothing is retried automatically.
 */

package otp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

const (
	DefaultLength          = 6
	DefaultCooldownSeconds = 60
)

var (
	ErrIncompleteCode     = errors.New("otp code is incomplete")
	ErrReferenceNotLoaded = errors.New("auto-debit reference has not loaded")
	ErrResendCoolingDown  = errors.New("otp resend is not available yet")
	ErrCellOutOfRange     = errors.New("otp cell index out of range")
	ErrInvalidCell        = errors.New("otp cell takes a single character")
	ErrClosed             = errors.New("otp confirmation is closed")
	ErrBusy               = errors.New("otp request already in flight")
)

type AutoDebitClient interface {
	AutoDebitReference(ctx context.Context, pfID string) (string, error)
	ConfirmAutoDebit(ctx context.Context, req ipapclient.ConfirmAutoDebitRequest) error
	ResendAutoDebitOTP(ctx context.Context, pfID string) error
}

type Options struct {
	Length          int
	CooldownSeconds int
	Ticker          TickerFunc
}

// ContinueFunc runs once when the modal finishes. confirmed is false when the
// agent closed it without confirming.
type ContinueFunc func(ctx context.Context, confirmed bool) error

type View struct {
	FinancingID     string   `json:"pfId"`
	Cells           []string `json:"otpValues"`
	Length          int      `json:"length"`
	ReferenceLoaded bool     `json:"referenceLoaded"`
	IsComplete      bool     `json:"isOtpComplete"`
	ConfirmEnabled  bool     `json:"confirmEnabled"`
	ResendEnabled   bool     `json:"resendEnabled"`
	ResendCooldown  int      `json:"resendCooldown"`
	Resending       bool     `json:"resending"`
	Confirming      bool     `json:"confirming"`
	Confirmed       bool     `json:"confirmed"`
	Closed          bool     `json:"closed"`
	Error           string   `json:"error,omitempty"`
}

type Confirmation struct {
	client     AutoDebitClient
	pfID       string
	length     int
	cooldown   int
	countdown  *Countdown
	onContinue ContinueFunc

	mu         sync.Mutex
	cells      []string
	refID      string
	errMsg     string
	resending  bool
	confirming bool
	confirmed  bool
	closed     bool
	continued  bool
}

func NewConfirmation(client AutoDebitClient, pfID string, opts Options, onContinue ContinueFunc) *Confirmation {
	length := opts.Length
	if length <= 0 {
		length = DefaultLength
	}
	cooldown := opts.CooldownSeconds
	if cooldown <= 0 {
		cooldown = DefaultCooldownSeconds
	}
	return &Confirmation{
		client:     client,
		pfID:       pfID,
		length:     length,
		cooldown:   cooldown,
		countdown:  NewCountdown(opts.Ticker),
		onContinue: onContinue,
		cells:      make([]string, length),
	}
}

// Open fetches the reference id the confirm call needs.
func (c *Confirmation) Open(ctx context.Context) (View, error) {
	refID, err := c.client.AutoDebitReference(ctx, c.pfID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = err.Error()
		return c.viewLocked(), fmt.Errorf("failed to load auto-debit reference: %w", err)
	}
	c.refID = refID
	c.errMsg = ""
	return c.viewLocked(), nil
}

func (c *Confirmation) SetCell(index int, value string) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	if index < 0 || index >= c.length {
		return View{}, ErrCellOutOfRange
	}
	value = strings.TrimSpace(value)
	if len([]rune(value)) > 1 {
		return View{}, ErrInvalidCell
	}
	c.cells[index] = value
	return c.viewLocked(), nil
}

// SetCode spreads a pasted code over the cells. Extra characters are dropped.
func (c *Confirmation) SetCode(code string) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	runes := []rune(strings.TrimSpace(code))
	for i := range c.cells {
		c.cells[i] = ""
		if i < len(runes) {
			c.cells[i] = string(runes[i])
		}
	}
	return c.viewLocked(), nil
}

func (c *Confirmation) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked()
}

func (c *Confirmation) completeLocked() bool {
	if len(c.cells) != c.length {
		return false
	}
	for _, cell := range c.cells {
		if cell == "" {
			return false
		}
	}
	return true
}

func (c *Confirmation) ConfirmEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmEnabledLocked()
}

func (c *Confirmation) confirmEnabledLocked() bool {
	return !c.closed && !c.confirming && c.refID != "" && c.completeLocked()
}

func (c *Confirmation) ResendEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resendEnabledLocked()
}

func (c *Confirmation) resendEnabledLocked() bool {
	return !c.closed && !c.resending && c.countdown.Remaining() == 0
}

// Confirm posts the code. On success the continuation runs and the modal closes.
func (c *Confirmation) Confirm(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrClosed
	}
	if c.confirming {
		c.mu.Unlock()
		return View{}, ErrBusy
	}
	if c.refID == "" {
		c.mu.Unlock()
		return View{}, ErrReferenceNotLoaded
	}
	if !c.completeLocked() {
		c.mu.Unlock()
		return View{}, ErrIncompleteCode
	}
	req := ipapclient.ConfirmAutoDebitRequest{
		UniqRefID: c.refID,
		AuthCode:  strings.Join(c.cells, ""),
		PfID:      c.pfID,
	}
	c.confirming = true
	c.mu.Unlock()

	err := c.client.ConfirmAutoDebit(ctx, req)

	c.mu.Lock()
	c.confirming = false
	if err != nil {
		c.errMsg = err.Error()
		view := c.viewLocked()
		c.mu.Unlock()
		log.Printf("level=warn component=otp msg=\"auto-debit confirmation failed\" pf_id=%s err=%q", c.pfID, err.Error())
		return view, err
	}
	c.confirmed = true
	c.errMsg = ""
	c.mu.Unlock()

	if err := c.finish(ctx, true); err != nil {
		return c.View(), err
	}
	return c.View(), nil
}

// Resend asks for a fresh code and restarts the cooldown.
func (c *Confirmation) Resend(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrClosed
	}
	if c.resending {
		c.mu.Unlock()
		return View{}, ErrBusy
	}
	if !c.resendEnabledLocked() {
		c.mu.Unlock()
		return View{}, ErrResendCoolingDown
	}
	c.resending = true
	c.mu.Unlock()

	err := c.client.ResendAutoDebitOTP(ctx, c.pfID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resending = false
	if err != nil {
		c.errMsg = err.Error()
		return c.viewLocked(), err
	}
	c.errMsg = ""
	for i := range c.cells {
		c.cells[i] = ""
	}
	if !c.closed {
		c.countdown.Start(c.cooldown)
	}
	return c.viewLocked(), nil
}

// Countdown exposes the resend cooldown.
func (c *Confirmation) Countdown() *Countdown {
	return c.countdown
}

// Close dismisses the modal. The continuation still runs because the payment
// behind this OTP was already verified.
func (c *Confirmation) Close(ctx context.Context) error {
	return c.finish(ctx, false)
}

func (c *Confirmation) finish(ctx context.Context, confirmed bool) error {
	c.mu.Lock()
	c.closed = true
	c.countdown.Stop()
	if c.continued {
		c.mu.Unlock()
		return nil
	}
	c.continued = true
	c.mu.Unlock()

	if c.onContinue == nil {
		return nil
	}
	return c.onContinue(ctx, confirmed)
}

func (c *Confirmation) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Confirmation) viewLocked() View {
	cells := make([]string, len(c.cells))
	copy(cells, c.cells)
	return View{
		FinancingID:     c.pfID,
		Cells:           cells,
		Length:          c.length,
		ReferenceLoaded: c.refID != "",
		IsComplete:      c.completeLocked(),
		ConfirmEnabled:  c.confirmEnabledLocked(),
		ResendEnabled:   c.resendEnabledLocked(),
		ResendCooldown:  c.countdown.Remaining(),
		Resending:       c.resending,
		Confirming:      c.confirming,
		Confirmed:       c.confirmed,
		Closed:          c.closed,
		Error:           c.errMsg,
	}
}
