package identity

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DevAccount seeds one user into the development provider.
type DevAccount struct {
	User     User
	Password string
}

// DevServer is an in-process identity provider used in development and in
// handler tests. It verifies bcrypt password hashes, issues HS256 JWTs and
// rotates opaque refresh tokens. It is not a production identity service.
type DevServer struct {
	logger   *slog.Logger
	secret   []byte
	tokenTTL time.Duration

	mu       sync.Mutex
	accounts map[string]devAccount
	refresh  map[string]string // refresh token -> user email
}

type devAccount struct {
	user User
	hash []byte
}

// NewDevServer constructs a DevServer seeding the given accounts.
func NewDevServer(logger *slog.Logger, secret string, tokenTTL time.Duration, accounts []DevAccount) (*DevServer, error) {
	s := &DevServer{
		logger:   logger,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		accounts: make(map[string]devAccount, len(accounts)),
		refresh:  make(map[string]string),
	}
	for _, acc := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.accounts[acc.User.Email] = devAccount{user: acc.User, hash: hash}
	}
	return s, nil
}

// MountRoutes registers the provider endpoints on the router.
func (s *DevServer) MountRoutes(r chi.Router) {
	r.Post("/v1/login", s.handleLogin)
	r.Post("/v1/refresh", s.handleRefresh)
	r.Post("/v1/logout", s.handleLogout)
}

func (s *DevServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[creds.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(creds.Password)) != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	result, err := s.issue(acc.user)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("issue token", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *DevServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	email, ok := s.refresh[payload.RefreshToken]
	if ok {
		// Refresh tokens are single use.
		delete(s.refresh, payload.RefreshToken)
	}
	acc, found := s.accounts[email]
	s.mu.Unlock()
	if !ok || !found {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	result, err := s.issue(acc.user)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResult{
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	})
}

func (s *DevServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// RevokeRefreshTokens drops all outstanding refresh tokens. Used by tests to
// force refresh failures.
func (s *DevServer) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = make(map[string]string)
	s.mu.Unlock()
}

func (s *DevServer) issue(user User) (*LoginResult, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.RoleID,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.NewString()
	s.mu.Lock()
	s.refresh[refreshToken] = user.Email
	s.mu.Unlock()

	return &LoginResult{
		User:         user,
		Token:        signed,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DefaultDevAccounts returns the seed accounts used by the development
// provider, one per portal role.
func DefaultDevAccounts() []DevAccount {
	return []DevAccount{
		{
			User:     User{ID: "u-1001", RoleID: "investor", Name: "Ira Investor", Email: "investor@meridian.test", KYCStatus: KYCVerified},
			Password: "investor-pass-1",
		},
		{
			User:     User{ID: "u-2001", RoleID: "advisor", Name: "Ava Advisor", Email: "advisor@meridian.test", KYCStatus: KYCVerified},
			Password: "advisor-pass-1",
		},
		{
			User:     User{ID: "u-3001", RoleID: "admin", Name: "Adam Admin", Email: "admin@meridian.test", KYCStatus: KYCVerified},
			Password: "admin-pass-01",
		},
		{
			User:     User{ID: "u-9001", RoleID: "super_admin", Name: "Root", Email: "root@meridian.test", KYCStatus: KYCVerified},
			Password: "super-pass-01",
		},
	}
}
