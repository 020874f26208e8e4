// Package token handles bearer-token claims and the persisted token set
// produced by the OAuth exchange.
//
// Decode does NOT verify the token signature: these tokens arrive through a
// gateway that has already validated them, and the claims are only used to
// derive the tenant bucket and identity header for storage signing.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/percolationlabs/p8node/keystore"
)

// Storage slots for the token set, shared with the mobile and web clients.
const (
	SlotAccessToken  = "@auth:access_token"
	SlotRefreshToken = "@auth:refresh_token"
	SlotExpiresAt    = "@auth:expires_at"
	SlotIDToken      = "@auth:id_token"
	SlotTenantID     = "@auth:tenant_id"
)

// ErrMissingClaims is returned when a decoded token lacks the tenant or
// email claim.
var ErrMissingClaims = errors.New("token: tenant_id or email claim missing")

// Claims are the application claims extracted from a bearer token.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Decode extracts claims from a bearer token without verifying its
// signature.
func Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("token: failed to decode bearer token: %w", err)
	}
	if claims.TenantID == "" || claims.Email == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// Set is the persisted token set for one logged-in identity.
type Set struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TenantID     string
	ExpiresAt    time.Time
}

// Expired reports whether the access token's recorded lifetime has passed.
func (s *Set) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Save persists the token set into storage.
func Save(storage keystore.Storage, set *Set) error {
	pairs := []struct{ slot, value string }{
		{SlotAccessToken, set.AccessToken},
		{SlotRefreshToken, set.RefreshToken},
		{SlotIDToken, set.IDToken},
		{SlotTenantID, set.TenantID},
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if err := storage.Set(p.slot, p.value); err != nil {
			return err
		}
	}
	if !set.ExpiresAt.IsZero() {
		millis := strconv.FormatInt(set.ExpiresAt.UnixMilli(), 10)
		if err := storage.Set(SlotExpiresAt, millis); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the token set from storage. Absent slots are left zero; a
// fully absent access token is reported via keystore.ErrNotFound.
func Load(storage keystore.Storage) (*Set, error) {
	access, err := storage.Get(SlotAccessToken)
	if err != nil {
		return nil, err
	}
	set := &Set{AccessToken: access}

	if v, err := storage.Get(SlotRefreshToken); err == nil {
		set.RefreshToken = v
	}
	if v, err := storage.Get(SlotIDToken); err == nil {
		set.IDToken = v
	}
	if v, err := storage.Get(SlotTenantID); err == nil {
		set.TenantID = v
	}
	if v, err := storage.Get(SlotExpiresAt); err == nil {
		millis, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token: corrupt expires_at value %q: %w", v, err)
		}
		set.ExpiresAt = time.UnixMilli(millis)
	}
	return set, nil
}
