package pairing

// DeviceCodeResponse is the response from POST /oauth/device/code.
type DeviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
	QRData                  string `json:"qr_data,omitempty"`
}

// QRSession is the response from POST /api/v1/device/qr/create.
type QRSession struct {
	SessionID string `json:"session_id"`
	PublicKey string `json:"public_key"`
	ExpiresIn int    `json:"expires_in"`
}

// DeviceInfo describes the device creating a QR session.
type DeviceInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Session merges the device-code grant and the QR session into the single
// record one pairing attempt works with. The JSON form is what gets encoded
// into the QR code for the mobile device to scan. ExpiresIn shadows the
// per-response lifetimes; the merge takes the device-code grant's, which
// governs the countdown.
type Session struct {
	DeviceCodeResponse
	QRSession
	ExpiresIn int `json:"expires_in"`
}

// MergeSession combines the two creation responses into one Session.
func MergeSession(dc *DeviceCodeResponse, qr *QRSession) *Session {
	return &Session{
		DeviceCodeResponse: *dc,
		QRSession:          *qr,
		ExpiresIn:          dc.ExpiresIn,
	}
}

// Poll status values reported by the session status endpoint.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusNotFound = "not_found"
)

// PollStatus is the response from GET /api/v1/device/session/{code}/status.
type PollStatus struct {
	Status    string `json:"status"`
	UserCode  string `json:"user_code,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Approved reports whether this status ends the polling loop successfully.
func (p *PollStatus) Approved() bool {
	return p.Status == StatusApproved
}

// TokenResponse is the response from the OAuth token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
}

// ApproveResponse is the response from POST /oauth/device/approve.
type ApproveResponse struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}
