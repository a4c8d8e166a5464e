package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps HTTP client for API operations
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(server, botToken string) *Client {
	// Ensure server has protocol prefix
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}

	return &Client{
		baseURL:  strings.TrimSuffix(server, "/"),
		botToken: botToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// actionRequest is the request body for the secrets action endpoint
type actionRequest struct {
	Action       string `json:"action"`
	Secret       string `json:"secret,omitempty"`
	Password     string `json:"password,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	Handle       string `json:"handle,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// CreateResponse is the response from creating a secret
type CreateResponse struct {
	Handle    string `json:"handle"`
	ExpiresAt int64  `json:"expires_at"`
	Message   string `json:"message"`
}

// RetrieveResponse is the response from retrieving a secret
type RetrieveResponse struct {
	Secret  string `json:"secret"`
	Message string `json:"message"`
}

// CheckResponse is the response from checking a secret
type CheckResponse struct {
	RequiresPassword bool  `json:"requires_password"`
	ExpiresAt        int64 `json:"expires_at"`
}

// HealthResponse is the response from the healthcheck
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// action posts an action request to the secrets endpoint
func (c *Client) action(ctx context.Context, req actionRequest, result interface{}) error {
	if c.botToken != "" && req.CaptchaToken == "" {
		req.CaptchaToken = c.botToken
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/secrets", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			ExpiredAt int64  `json:"expired_at"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			if errResp.ExpiredAt > 0 {
				return fmt.Errorf("API error (%d): %s (expired at %s)",
					resp.StatusCode, errResp.Error,
					time.Unix(errResp.ExpiredAt, 0).Format(time.RFC3339))
			}
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// CreateSecret stores a new secret and returns its one-time handle
func (c *Client) CreateSecret(ctx context.Context, secretValue, password, expiresAt string) (*CreateResponse, error) {
	var resp CreateResponse
	err := c.action(ctx, actionRequest{
		Action:    "create",
		Secret:    secretValue,
		Password:  password,
		ExpiresAt: expiresAt,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetrieveSecret fetches and destroys a secret by handle
func (c *Client) RetrieveSecret(ctx context.Context, handle, password string) (*RetrieveResponse, error) {
	var resp RetrieveResponse
	err := c.action(ctx, actionRequest{
		Action:   "retrieve",
		Handle:   handle,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckSecret inspects a secret's metadata without consuming it
func (c *Client) CheckSecret(ctx context.Context, handle string) (*CheckResponse, error) {
	var resp CheckResponse
	err := c.action(ctx, actionRequest{
		Action: "check",
		Handle: handle,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Healthcheck checks service availability
func (c *Client) Healthcheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.action(ctx, actionRequest{Action: "healthcheck"}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
