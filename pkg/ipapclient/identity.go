package ipapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// GhanaCardRequest is the payload submitted for a selfie-to-card match.
type GhanaCardRequest struct {
	GhanaCardNumber string `json:"ghanaCardNumber"`
	SelfieImage     string `json:"selfieImage"`
	UserEmail       string `json:"userEmail"`
	UserPhone       string `json:"userPhone"`
}

type rawPerson struct {
	Forenames   string `json:"forenames"`
	Surname     string `json:"surname"`
	NationalID  string `json:"nationalId"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

type rawVerification struct {
	Success        *bool      `json:"success"`
	Verified       *bool      `json:"verified"`
	VerificationID string     `json:"verificationId"`
	ID             string     `json:"id"`
	Message        string     `json:"message"`
	Data           *rawPerson `json:"data"`
	rawPerson
}

// VerifyGhanaCard submits a selfie against a Ghana Card. public selects the
// unauthenticated endpoint used before an agent session exists.
func (c *Client) VerifyGhanaCard(ctx context.Context, req GhanaCardRequest, public bool) (*domain.VerificationResponse, error) {
	path := pathGhanaCardUser
	if public {
		path = pathGhanaCardPublic
	}

	body, err := c.do(ctx, "ghana_card_verify", http.MethodPost, c.BaseURL+path, req)
	if err != nil {
		return nil, err
	}

	var raw rawVerification
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode ghana_card_verify response: %w", err)
	}
	return normalizeVerification(raw), nil
}

func normalizeVerification(raw rawVerification) *domain.VerificationResponse {
	person := raw.rawPerson
	if raw.Data != nil {
		if person.Forenames == "" {
			person.Forenames = raw.Data.Forenames
		}
		if person.Surname == "" {
			person.Surname = raw.Data.Surname
		}
		if person.NationalID == "" {
			person.NationalID = raw.Data.NationalID
		}
		if person.DateOfBirth == "" {
			person.DateOfBirth = raw.Data.DateOfBirth
		}
		if person.Gender == "" {
			person.Gender = raw.Data.Gender
		}
	}

	id := raw.VerificationID
	if id == "" {
		id = raw.ID
	}

	success := false
	switch {
	case raw.Success != nil:
		success = *raw.Success
	case raw.Verified != nil:
		success = *raw.Verified
	}

	return &domain.VerificationResponse{
		Success:        success,
		VerificationID: id,
		Forenames:      person.Forenames,
		Surname:        person.Surname,
		NationalID:     person.NationalID,
		DateOfBirth:    person.DateOfBirth,
		Gender:         person.Gender,
		Message:        raw.Message,
	}
}
