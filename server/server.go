// Package server exposes the presign endpoints the upload UI consumes:
//
//	POST /api/upload/presign  {fileName, mimeType} + bearer -> {url, key}
//	GET  /api/upload/view?key=...         + bearer -> {url}
//
// The bearer token's tenant_id selects the bucket and its email becomes the
// signed identity header; the token itself is decoded without verification
// because the fronting gateway has already validated it.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/percolationlabs/p8node/sigv4"
	"github.com/percolationlabs/p8node/token"
)

// presignTTL is the lifetime of issued presigned URLs.
const presignTTL = time.Hour

// Server holds the presign service's dependencies.
type Server struct {
	signer *sigv4.Signer
	logger zerolog.Logger
}

// New creates a Server around the given signer.
func New(signer *sigv4.Signer, logger zerolog.Logger) *Server {
	return &Server{signer: signer, logger: logger}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/upload/presign", s.handlePresign).Methods(http.MethodPost)
	r.HandleFunc("/api/upload/view", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

type presignRequest struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

type presignResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

type viewResponse struct {
	URL string `json:"url"`
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(w, r)
	if !ok {
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileName == "" || req.MimeType == "" {
		s.writeError(w, http.StatusBadRequest, "fileName and mimeType required")
		return
	}

	key := s.signer.GenerateUploadKey(req.FileName)
	obj, err := s.signer.PresignPut(claims.TenantID, key, presignTTL)
	if err != nil {
		s.signingError(w, r, err)
		return
	}

	s.logger.Info().
		Str("tenant", claims.TenantID).
		Str("key", key).
		Msg("issued upload presign")
	s.writeJSON(w, http.StatusOK, presignResponse{URL: obj.URL, Key: obj.Key})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(w, r)
	if !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key query param required")
		return
	}

	u, err := s.signer.PresignGet(claims.TenantID, key, presignTTL)
	if err != nil {
		s.signingError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, viewResponse{URL: u})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerClaims extracts and decodes the bearer token, writing a 401 and
// returning ok=false when it is missing or undecodable.
func (s *Server) bearerClaims(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		s.writeError(w, http.StatusUnauthorized, "Missing Authorization Bearer token")
		return nil, false
	}

	claims, err := token.Decode(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid bearer token")
		return nil, false
	}
	return claims, true
}

func (s *Server) signingError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("presign failed")
	if errors.Is(err, sigv4.ErrMissingCredentials) {
		s.writeError(w, http.StatusInternalServerError, "storage credentials not configured")
		return
	}
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
