package financing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

// ErrLoanNotFinalized is returned when the schedule is requested before the loan
// calculation was confirmed.
var ErrLoanNotFinalized = errors.New("loan calculation has not been confirmed")

// ErrScheduleNotLoaded is returned by export before a schedule was loaded.
var ErrScheduleNotLoaded = errors.New("repayment schedule has not been loaded")

const schedulePrintPath = "/print/repayment-schedule"

type ScheduleFetcher interface {
	DirectRepaymentSchedule(ctx context.Context, req ipapclient.ScheduleRequest) (*domain.RepaymentSchedule, error)
}

type PDFRenderer interface {
	RenderPDF(ctx context.Context, req ipapclient.PDFRequest) ([]byte, error)
}

// ScheduleView is what the repayment schedule screen renders.
type ScheduleView struct {
	Loading         bool                      `json:"loading"`
	Schedule        *domain.RepaymentSchedule `json:"schedule,omitempty"`
	Error           string                    `json:"error,omitempty"`
	Params          string                    `json:"params,omitempty"`
	ContinueEnabled bool                      `json:"continueEnabled"`
}

// SchedulePreview shows the amortization of the confirmed loan and exports it.
type SchedulePreview struct {
	fetcher  ScheduleFetcher
	renderer PDFRenderer
	states   store.StateStore
	key      store.FlowKey
	baseURL  string

	mu       sync.Mutex
	loading  bool
	schedule *domain.RepaymentSchedule
	errMsg   string
	params   string
}

func NewSchedulePreview(fetcher ScheduleFetcher, renderer PDFRenderer, states store.StateStore, key store.FlowKey, portalBaseURL string) *SchedulePreview {
	return &SchedulePreview{
		fetcher:  fetcher,
		renderer: renderer,
		states:   states,
		key:      key,
		baseURL:  strings.TrimRight(portalBaseURL, "/"),
	}
}

// Load fetches the schedule for the finalized loan. Upstream failures are kept
// on the view; only a missing or unconfirmed loan is returned as an error.
func (p *SchedulePreview) Load(ctx context.Context) (ScheduleView, error) {
	state, err := p.states.Get(ctx, p.key)
	if errors.Is(err, store.ErrStateNotFound) {
		return ScheduleView{}, ErrLoanNotFinalized
	}
	if err != nil {
		return ScheduleView{}, err
	}
	if !state.LoanData.Finalized() {
		return ScheduleView{}, ErrLoanNotFinalized
	}

	req := ipapclient.NewScheduleRequest(state.LoanData, state.VerificationID)
	params, err := ipapclient.EncodeParams(req)
	if err != nil {
		return ScheduleView{}, err
	}

	p.mu.Lock()
	p.loading = true
	p.errMsg = ""
	p.params = params
	p.mu.Unlock()

	schedule, fetchErr := p.fetcher.DirectRepaymentSchedule(ctx, req)

	p.mu.Lock()
	p.loading = false
	if fetchErr != nil {
		p.schedule = nil
		p.errMsg = fetchErr.Error()
	} else {
		p.schedule = schedule
	}
	p.mu.Unlock()

	return p.View(), nil
}

func (p *SchedulePreview) View() ScheduleView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ScheduleView{
		Loading:         p.loading,
		Schedule:        p.schedule,
		Error:           p.errMsg,
		Params:          p.params,
		ContinueEnabled: p.continueEnabledLocked(),
	}
}

// ContinueEnabled is false while loading, after an error, or with no rows.
func (p *SchedulePreview) ContinueEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.continueEnabledLocked()
}

func (p *SchedulePreview) continueEnabledLocked() bool {
	return !p.loading && p.errMsg == "" && p.schedule != nil && len(p.schedule.Schedule) > 0
}

// ExportParams returns the encoded parameters the preview was loaded with.
func (p *SchedulePreview) ExportParams() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.params == "" {
		return "", ErrScheduleNotLoaded
	}
	return p.params, nil
}

// ExportPDF prints the schedule page with the same parameters as the preview.
// The session cookie lets the renderer load the page as the agent.
func (p *SchedulePreview) ExportPDF(ctx context.Context, cookie *ipapclient.PDFCookie) ([]byte, error) {
	params, err := p.ExportParams()
	if err != nil {
		return nil, err
	}
	pdf, err := p.renderer.RenderPDF(ctx, ipapclient.PDFRequest{
		URL:    p.baseURL + schedulePrintPath,
		Params: params,
		Cookie: cookie,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export repayment schedule: %w", err)
	}
	return pdf, nil
}
