package pairing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDeviceCode(t *testing.T) {
	t.Run("sends form fields and parses response", func(t *testing.T) {
		var gotPath, gotContentType string
		var gotForm map[string][]string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
			require.NoError(t, r.ParseForm())
			gotForm = r.PostForm

			json.NewEncoder(w).Encode(DeviceCodeResponse{
				DeviceCode:      "dev-123",
				UserCode:        "ABCD-1234",
				VerificationURI: "https://auth.example/activate",
				ExpiresIn:       600,
				Interval:        5,
			})
		}))
		defer ts.Close()

		client := NewClient(ts.URL+"/", nil) // trailing slash must be trimmed
		resp, err := client.RequestDeviceCode(context.Background(), "p8-node-desktop", "read write sync", "pubkey-b64")
		require.NoError(t, err)

		assert.Equal(t, "/oauth/device/code", gotPath)
		assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
		assert.Equal(t, []string{"p8-node-desktop"}, gotForm["client_id"])
		assert.Equal(t, []string{"read write sync"}, gotForm["scope"])
		assert.Equal(t, []string{"pubkey-b64"}, gotForm["mobile_public_key"])

		assert.Equal(t, "dev-123", resp.DeviceCode)
		assert.Equal(t, "ABCD-1234", resp.UserCode)
		assert.Equal(t, 5, resp.Interval)
	})

	t.Run("surfaces server rejection verbatim", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid_client", http.StatusBadRequest)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		_, err := client.RequestDeviceCode(context.Background(), "bad", "scope", "")

		var serverErr *ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, http.StatusBadRequest, serverErr.Status)
		assert.Contains(t, serverErr.Body, "invalid_client")
	})
}

func TestCreateQRSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/device/qr/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			ClientID   string     `json:"client_id"`
			DeviceInfo DeviceInfo `json:"device_info"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p8-node-desktop", body.ClientID)
		assert.Equal(t, "P8 Node Desktop", body.DeviceInfo.Name)

		json.NewEncoder(w).Encode(QRSession{SessionID: "sess-9", PublicKey: "srv-pub", ExpiresIn: 300})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, nil)
	resp, err := client.CreateQRSession(context.Background(), "p8-node-desktop", DeviceInfo{Name: "P8 Node Desktop", Model: "p8node/go"})
	require.NoError(t, err)
	assert.Equal(t, "sess-9", resp.SessionID)
	assert.Equal(t, 300, resp.ExpiresIn)
}

func TestSessionStatus(t *testing.T) {
	t.Run("parses poll status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/device/session/dev-123/status", r.URL.Path)
			json.NewEncoder(w).Encode(PollStatus{Status: StatusPending, UserCode: "ABCD-1234"})
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		status, err := client.SessionStatus(context.Background(), "dev-123")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, status.Status)
		assert.False(t, status.Approved())
	})

	t.Run("empty device code fails without a request", func(t *testing.T) {
		client := NewClient("http://unreachable.invalid", nil)
		_, err := client.SessionStatus(context.Background(), "")
		require.ErrorIs(t, err, ErrNoDeviceCode)
	})
}

func TestApprove(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/device/approve", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ABCD-1234", r.PostForm.Get("device_code"))
		assert.NotEmpty(t, r.PostForm.Get("signature"))

		json.NewEncoder(w).Encode(ApproveResponse{Message: "approved"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, nil)
	resp, err := client.Approve(context.Background(), "ABCD-1234", "c2lnbmF0dXJl", "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "approved", resp.Message)
}

func TestExchangeCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-77", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-x", r.PostForm.Get("code_verifier"))

		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600, TenantID: "tenant-1"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, nil)
	resp, err := client.ExchangeCode(context.Background(), ExchangeRequest{
		ClientID:     "p8-node-desktop",
		Code:         "code-77",
		CodeVerifier: "verifier-x",
		Scope:        "read write sync",
	})
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "tenant-1", resp.TenantID)
}
