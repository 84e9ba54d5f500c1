package ipapclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

// LoginRequest is an agent sign-in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the upstream token plus the agent profile.
type LoginResult struct {
	Token string
	Agent domain.Agent
}

type rawLogin struct {
	Token       string       `json:"token"`
	AccessToken string       `json:"accessToken"`
	Agent       domain.Agent `json:"agent"`
	User        domain.Agent `json:"user"`
}

// Login signs an agent in against the IPAP backend.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var raw rawLogin
	if err := c.doJSON(ctx, "agent_login", http.MethodPost, pathAgentLogin, req, &raw); err != nil {
		return nil, err
	}

	token := raw.Token
	if token == "" {
		token = raw.AccessToken
	}
	if token == "" {
		return nil, errors.New("agent login response did not include a token")
	}

	agent := raw.Agent
	if agent.ID == "" {
		agent = raw.User
	}
	if agent.Email == "" {
		agent.Email = req.Email
	}
	return &LoginResult{Token: token, Agent: agent}, nil
}

// ListCustomers returns one page of the agent's customers.
func (c *Client) ListCustomers(ctx context.Context, page, limit int, search string) (*domain.CustomerList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if search != "" {
		q.Set("search", search)
	}
	path := pathCustomers
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out domain.CustomerList
	if err := c.doJSON(ctx, "customers_list", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Page == 0 {
		out.Page = page
	}
	if out.Limit == 0 {
		out.Limit = limit
	}
	return &out, nil
}

// GetCustomer fetches a single customer.
func (c *Client) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var out domain.Customer
	if err := c.doJSON(ctx, "customers_get", http.MethodGet, fmt.Sprintf(pathCustomer, url.PathEscape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCustomer registers a new customer for the agent.
func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var out domain.Customer
	if err := c.doJSON(ctx, "customers_create", http.MethodPost, pathCustomers, customer, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
