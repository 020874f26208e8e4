package pairing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/percolationlabs/p8node/keystore"
	"github.com/percolationlabs/p8node/token"
)

// SignApproval signs the user code with the stored Ed25519 key and returns
// the base64 detached signature. The signature covers the exact UTF-8 bytes
// of the code, with no hashing or transformation. Returns
// keystore.ErrMissingKeyMaterial when no signing pair is registered.
func SignApproval(storage keystore.Storage, userCode string) (string, error) {
	pair, err := keystore.LoadSigningKeyPair(storage)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(pair.PrivateKey, []byte(userCode))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// ApprovalSigner submits device approvals on behalf of an authenticated
// user: proof of key possession (the detached signature) plus the stored
// bearer token.
type ApprovalSigner struct {
	Client  *Client
	Storage keystore.Storage
}

// Approve signs userCode and submits the approval. Returns
// ErrUnauthenticated when no bearer token is stored, or
// keystore.ErrMissingKeyMaterial when the signing pair is absent.
func (a *ApprovalSigner) Approve(ctx context.Context, userCode string) (*ApproveResponse, error) {
	accessToken, err := a.Storage.Get(token.SlotAccessToken)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	signature, err := SignApproval(a.Storage, userCode)
	if err != nil {
		return nil, err
	}

	return a.Client.Approve(ctx, userCode, signature, accessToken)
}
