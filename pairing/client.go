// Package pairing implements the device-pairing core: the HTTP client for
// the authorization server's device-code and QR-session endpoints, the
// pairing state machine that drives a login attempt, and the Ed25519
// approval signer used by an already-authenticated device.
//
// # Flow
//
// The desktop side runs a Controller: it ensures the X25519 encryption pair
// exists, requests a device code and a QR session in parallel, renders the
// merged session as a QR code, and polls the status endpoint until the
// mobile side approves. Approval redirects into a standard OAuth
// authorization-code exchange.
//
// The mobile side scans the QR code and calls Approve, which signs the user
// code with the stored Ed25519 key and submits the detached signature with
// its bearer token.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrUnauthenticated is returned when an authenticated action is
	// attempted without a stored bearer access token.
	ErrUnauthenticated = errors.New("pairing: no access token found, log in first")

	// ErrNoDeviceCode is returned when polling is attempted for a session
	// that has no device code.
	ErrNoDeviceCode = errors.New("pairing: session has no device code")

	// ErrSessionExpired is returned when the pairing countdown reaches zero
	// before approval.
	ErrSessionExpired = errors.New("pairing: session expired before approval")
)

// ServerError is a non-2xx response from the authorization server. The
// status and body are preserved verbatim for diagnostics.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("pairing: server rejected request with status %d: %s", e.Status, e.Body)
}

// HTTPClient interface for dependency injection
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the authorization server's pairing and OAuth endpoints.
type Client struct {
	BaseURL    string
	HTTPClient HTTPClient
}

// NewClient creates a Client for the given authorization base URL.
func NewClient(baseURL string, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
	}
}

// RequestDeviceCode starts a device-code grant. The X25519 public key is
// attached so the server can encrypt a later response payload to this
// device.
func (c *Client) RequestDeviceCode(ctx context.Context, clientID, scope, mobilePublicKey string) (*DeviceCodeResponse, error) {
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("scope", scope)
	if mobilePublicKey != "" {
		form.Set("mobile_public_key", mobilePublicKey)
	}

	var resp DeviceCodeResponse
	if err := c.postForm(ctx, "/oauth/device/code", form, "", &resp); err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	return &resp, nil
}

// CreateQRSession creates a QR pairing session carrying device metadata.
func (c *Client) CreateQRSession(ctx context.Context, clientID string, info DeviceInfo) (*QRSession, error) {
	body, err := json.Marshal(struct {
		ClientID   string     `json:"client_id"`
		DeviceInfo DeviceInfo `json:"device_info"`
	}{ClientID: clientID, DeviceInfo: info})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal QR session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/device/qr/create", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create QR session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp QRSession
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("QR session creation failed: %w", err)
	}
	return &resp, nil
}

// SessionStatus polls the approval status for a device code.
func (c *Client) SessionStatus(ctx context.Context, deviceCode string) (*PollStatus, error) {
	if deviceCode == "" {
		return nil, ErrNoDeviceCode
	}

	u := fmt.Sprintf("%s/api/v1/device/session/%s/status", c.BaseURL, url.PathEscape(deviceCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	var resp PollStatus
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("status poll failed: %w", err)
	}
	return &resp, nil
}

// Approve submits a device approval: the user code, its detached Ed25519
// signature, and the approving user's bearer token.
func (c *Client) Approve(ctx context.Context, userCode, signatureBase64, accessToken string) (*ApproveResponse, error) {
	form := url.Values{}
	form.Set("device_code", userCode)
	form.Set("signature", signatureBase64)

	var resp ApproveResponse
	if err := c.postForm(ctx, "/oauth/device/approve", form, accessToken, &resp); err != nil {
		return nil, fmt.Errorf("approval failed: %w", err)
	}
	return &resp, nil
}

// ExchangeRequest carries the OAuth authorization-code exchange parameters.
type ExchangeRequest struct {
	ClientID     string
	Code         string
	CodeVerifier string
	Scope        string
}

// ExchangeCode redeems an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", req.ClientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code_verifier", req.CodeVerifier)
	form.Set("code", req.Code)
	form.Set("scope", req.Scope)

	var resp TokenResponse
	if err := c.postForm(ctx, "/oauth/token", form, "", &resp); err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
