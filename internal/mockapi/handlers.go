package mockapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/jwt"
	"github.com/jrsteele09/go-school-session/users"
)

const (
	mailVerifyEmail   = "verify-email"
	mailResetPassword = "reset-password"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// writeDetail writes an error body in the backend's {"detail": "..."} shape
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

// issue creates a new access token and a new refresh token for the account
func (s *Server) issue(account *Account) (token.Response, error) {
	accessToken, err := s.creator.CreateAccessToken(account.ID)
	if err != nil {
		return token.Response{}, err
	}
	if ti, err := jwt.Introspect(accessToken); err == nil {
		s.lock.Lock()
		s.issued[ti.ID] = ti.ExpiresAt
		s.lock.Unlock()
	}

	refreshToken := generateRandomString(48)
	now := jwt.NowTimeFunc()
	err = s.grants.Upsert(&StoredRefreshToken{
		TokenHash: hashToken(refreshToken),
		UserID:    account.ID,
		Iat:       now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return token.Response{}, err
	}

	return token.Response{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.creator.TTL() / time.Second),
	}, nil
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.loginCalls.Add(1)

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		account, err := s.accounts.GetByEmail(req.Email)
		if err != nil || !users.CheckPasswordHash(req.Password, account.PasswordHash) {
			writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if !account.IsActive() {
			writeDetail(w, http.StatusForbidden, "Account disabled")
			return
		}

		resp, err := s.issue(account)
		if err != nil {
			log.Err(err).Msg("Failed to issue tokens")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RefreshHandler spends the presented refresh token and issues a new pair
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if delay := time.Duration(s.refreshDelay.Load()); delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		grant, err := s.grants.Take(hashToken(req.RefreshToken))
		if err != nil || jwt.NowTimeFunc().After(grant.ExpiresAt) {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		account, err := s.accounts.GetByID(grant.UserID)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		if !account.IsActive() {
			writeDetail(w, http.StatusForbidden, "Account disabled")
			return
		}

		resp, err := s.issue(account)
		if err != nil {
			log.Err(err).Msg("Failed to issue tokens")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		account, err := s.accounts.GetByID(userID)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if !account.IsActive() {
			writeDetail(w, http.StatusForbidden, "Account disabled")
			return
		}
		writeJSON(w, http.StatusOK, account.Profile)
	}
}

// sendMail records a message with a fresh single use action token
func (s *Server) sendMail(kind, email string) {
	m := Mail{Kind: kind, Email: users.NormalizeEmail(email), Token: generateRandomString(24)}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.mail[m.Email] = m
	s.actionTokens[m.Token] = m
}

func (s *Server) takeActionToken(kind, actionToken string) (Mail, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	m, ok := s.actionTokens[actionToken]
	if !ok || m.Kind != kind {
		return Mail{}, false
	}
	delete(s.actionTokens, actionToken)
	return m, true
}

func (s *Server) RequestEmailVerificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if account, err := s.accounts.GetByEmail(req.Email); err == nil && !account.EmailVerified {
			s.sendMail(mailVerifyEmail, account.Email)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a verification email has been sent"})
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		m, ok := s.takeActionToken(mailVerifyEmail, req.Token)
		if !ok {
			writeDetail(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		if err := s.accounts.SetVerified(m.Email, true); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
	}
}

func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if account, err := s.accounts.GetByEmail(req.Email); err == nil {
			s.sendMail(mailResetPassword, account.Email)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a reset email has been sent"})
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token       string `json:"token"`
			NewPassword string `json:"new_password"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := users.ValidatePasswordStrength(req.NewPassword); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		m, ok := s.takeActionToken(mailResetPassword, req.Token)
		if !ok {
			writeDetail(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}

		hash, err := users.HashPassword(req.NewPassword)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		account, err := s.accounts.GetByEmail(m.Email)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		if err := s.accounts.SetPasswordHash(m.Email, hash); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		// A password reset signs the user out everywhere
		if err := s.grants.DeleteByUserID(account.ID); err != nil {
			log.Err(err).Msg("Failed to revoke refresh tokens")
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
	}
}

// ResourceHandler answers any authenticated call outside the auth surface
// with an echo of what it received.
func (s *Server) ResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := userIDFromContext(r.Context())

		var body any
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
				return
			}
		}

		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"resource": r.PathValue("resource"),
			"id":       r.PathValue("id"),
			"method":   r.Method,
			"user_id":  userID,
			"body":     body,
		})
	}
}
