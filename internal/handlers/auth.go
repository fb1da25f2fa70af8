package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bookhive/apiserver/internal/auth"
	"github.com/bookhive/apiserver/internal/services"
	"github.com/bookhive/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// Token gate messages. The gate does not distinguish expired from
// forged tokens externally.
const (
	msgTokenMissing   = "Auth token is not supplied"
	msgTokenMalformed = "Authorization header format must be Bearer <token>"
	msgTokenInvalid   = "Token is not valid"
)

// AuthHandler provides the registration, login, and password endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	issuer   *auth.Issuer
	logger   *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, issuer *auth.Issuer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{accounts: accounts, issuer: issuer, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, accounts *services.AccountService, issuer *auth.Issuer, logger *slog.Logger) {
	handler := NewAuthHandler(accounts, issuer, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(RequireAuth(issuer)).Get("/me", handler.Me)
	r.With(RequireAuth(issuer)).Put("/password", handler.ChangePassword)
}

// RequireAuth builds the token gate middleware. A request passes only
// with a well-formed Authorization header carrying a token that
// verifies against the issuer's secret; the decoded claims are placed
// in the request context.
func RequireAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				writeError(w, http.StatusUnauthorized, msgTokenMissing)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				writeError(w, http.StatusBadRequest, msgTokenMalformed)
				return
			}

			claims, err := issuer.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusForbidden, msgTokenInvalid)
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only claims at or above the given priority
// (lower role number means more privilege). Must run after RequireAuth.
func RequireRole(maxRole int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgTokenMissing)
				return
			}
			if claims.Role > maxRole {
				writeError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Password  string `json:"password"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the password-change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RegisteredUser is the public account shape returned on registration.
type RegisteredUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  int    `json:"role"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	AccessToken string         `json:"accessToken"`
	User        RegisteredUser `json:"user"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ID          int    `json:"id"`
}

// Register validates the payload, creates the account and credential,
// and returns a bearer token for the new identity.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.accounts.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      req.Role,
		Password:  req.Password,
	})
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, store.ErrDuplicateUsername):
			writeError(w, http.StatusBadRequest, "Username exists")
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "Email exists")
		case errors.Is(err, store.ErrDuplicatePhone):
			writeError(w, http.StatusBadRequest, "Phone exists")
		default:
			h.logger.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Something went wrong")
		}
		return
	}

	token, err := h.issuer.Issue(account.ID, account.Role, account.Name())
	if err != nil {
		h.logger.Error("token issuance failed", "account_id", account.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		AccessToken: token,
		User: RegisteredUser{
			ID:    account.ID,
			Name:  account.Name(),
			Email: account.Email,
			Role:  account.Role,
		},
	})
}

// Login verifies credentials and returns a bearer token. A token is
// issued only on a successful match.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}

	account, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, services.ErrCredentialMismatch):
			writeError(w, http.StatusBadRequest, "Credentials did not match")
		default:
			// Covers ErrIntegrity and storage faults; detail stays server-side.
			h.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Something went wrong")
		}
		return
	}

	token, err := h.issuer.Issue(account.ID, account.Role, account.Name())
	if err != nil {
		h.logger.Error("token issuance failed", "account_id", account.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, ID: account.ID})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgTokenMissing)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("account lookup failed", "account_id", claims.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ChangePassword verifies the current password and replaces the stored
// credential with a freshly salted digest of the new one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgTokenMissing)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Missing current or new password")
		return
	}

	err = h.accounts.ChangePassword(r.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, services.ErrCredentialMismatch):
			writeError(w, http.StatusBadRequest, "Credentials did not match")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Error("password change failed", "account_id", claims.AccountID, "error", err)
			writeError(w, http.StatusInternalServerError, "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
