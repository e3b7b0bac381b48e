package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/open-automation/relay-core/internal/account"
)

// ticketTTL is how long a WebSocket ticket stays valid. Tickets are
// single-use.
const ticketTTL = 60 * time.Second

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	Account     map[string]any `json:"account"`
}

// handleRegister creates a new account and returns its client view.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	a, err := s.accounts.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, account.ErrUsernameTaken):
		writeConflict(w, "username already taken")
		return
	case errors.Is(err, account.ErrInvalidCredentials):
		writeBadRequest(w, err.Error())
		return
	case err != nil:
		s.logger.Error("account registration failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, a.ClientSerialize())
}

// handleLogin authenticates an account and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	a, err := s.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttlMinutes := s.secCfg.TokenTTL / 60
	token, err := account.GenerateSessionToken(a, s.secCfg.JWTSecret, ttlMinutes)
	if err != nil {
		s.logger.Error("session token generation failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.secCfg.TokenTTL,
		Account:     a.ClientSerialize(),
	})
}

// handleMe returns the authenticated account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a, err := s.accounts.GetAccountByID(accountID(r))
	if err != nil {
		writeNotFound(w, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, a.ClientSerialize())
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// handleChangePassword rotates the caller's password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.accounts.ChangePassword(r.Context(), accountID(r), req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		writeUnauthorized(w, err.Error())
		return
	case err != nil:
		s.logger.Error("password change failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

// handleWSTicket issues a single-use WebSocket ticket bound to the
// caller's account. The ticket keeps the session token out of the
// WebSocket URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := generateTicket()
	s.tickets.put(ticket, accountID(r))

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	accountID string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

func (t *ticketStore) put(ticket, accountID string) {
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		accountID: accountID,
		expiresAt: time.Now().Add(ticketTTL),
	}
	t.mu.Unlock()
}

// consume validates and removes a ticket, returning the bound account ID.
func (t *ticketStore) consume(ticket string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(t.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.accountID, true
}

func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// cleanLoop removes expired tickets periodically until the context is
// cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}

// ticketBytes is the number of random bytes per WebSocket ticket.
const ticketBytes = 32

func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b)
	rand.Read(b)
	return hex.EncodeToString(b)
}
