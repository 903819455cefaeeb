package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ent0n29/tasklist/internal/identity"
)

type tokenResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	ExpiresInMS int64  `json:"expires_in_ms"`
}

// handleIssueToken gives a client a durable identity. Without a bearer token
// it registers a new user id; with a valid one it refreshes the same id.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if s.deps.Issuer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "token signing is not configured")
		return
	}

	uid := uuid.NewString()
	if token := bearerToken(r); token != "" {
		claims, err := s.deps.Issuer.VerifyToken(token)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, identity.ErrExpiredToken) {
				code = "expired_token"
			}
			respondError(w, http.StatusUnauthorized, code, err.Error())
			return
		}
		uid = claims.Subject
	}

	ttl := s.cfg.AuthTokenTTL
	token, err := s.deps.Issuer.IssueToken(uid, ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "issue_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{
		Token:       token,
		UserID:      uid,
		ExpiresInMS: ttl.Milliseconds(),
	})
}
