package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/auth"
	"github.com/ukydev/cmms-risk/internal/db"
	"github.com/ukydev/cmms-risk/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	log            logrus.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, log logrus.FieldLogger) *AuthHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		log:            log,
	}
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if loginReq.Username == "" || loginReq.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if errors.Is(err, db.ErrUserNotFound) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Failed to look up user")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	token, expiresAt, err := h.authService.Authenticate(user, loginReq.Password)
	switch {
	case errors.Is(err, auth.ErrUserInactive):
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	case err != nil:
		h.log.WithError(err).Error("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("username", user.Username).Warn("Failed to update last login")
	}
	h.log.WithFields(logrus.Fields{"username": user.Username, "role": user.Role}).Info("User logged in")

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      *user,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
