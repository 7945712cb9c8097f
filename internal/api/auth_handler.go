package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrade/internal/auth"
	"papertrade/internal/database"
)

// AuthHandler serves registration, login and token refresh
type AuthHandler struct {
	db              *database.DB
	jwt             *auth.JWTManager
	refreshDuration time.Duration
	log             *logrus.Entry
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *database.DB, jwt *auth.JWTManager, refreshDuration time.Duration, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		db:              db,
		jwt:             jwt,
		refreshDuration: refreshDuration,
		log:             logger.WithField("component", "auth"),
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := h.db.CheckUserExists(c.Request.Context(), req.Username, req.Email)
	if err != nil {
		h.log.WithError(err).Error("Failed to check user existence")
		respondError(c, http.StatusInternalServerError, "Registration failed")
		return
	}
	if exists {
		respondError(c, http.StatusConflict, "Username or email already taken")
		return
	}

	user, err := h.db.CreateUser(c.Request.Context(), req.Username, req.Email, req.Password, "user")
	if err != nil {
		h.log.WithError(err).Error("Failed to create user")
		respondError(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	h.log.WithField("username", user.Username).Info("User registered")
	respondOK(c, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := database.ValidatePassword(req.Password, user.PasswordHash); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tokens, err := h.issueTokens(c, user.ID, user.Username, user.Role)
	if err != nil {
		h.log.WithError(err).Error("Failed to issue tokens")
		respondError(c, http.StatusInternalServerError, "Login failed")
		return
	}

	if err := h.db.UpdateUserLastLogin(c.Request.Context(), user.ID); err != nil {
		h.log.WithError(err).Warn("Failed to update last login")
	}

	respondOK(c, http.StatusOK, tokens)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.db.GetUserSessionByToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	user, err := h.db.GetUserByID(c.Request.Context(), session.UserID)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "User not found")
		return
	}

	// Rotate: the presented refresh token is consumed.
	if err := h.db.DeleteUserSession(c.Request.Context(), session.ID); err != nil {
		h.log.WithError(err).Warn("Failed to delete consumed session")
	}

	tokens, err := h.issueTokens(c, user.ID, user.Username, user.Role)
	if err != nil {
		h.log.WithError(err).Error("Failed to issue tokens")
		respondError(c, http.StatusInternalServerError, "Refresh failed")
		return
	}

	respondOK(c, http.StatusOK, tokens)
}

// LocalToken handles POST /api/v1/auth/token in standalone mode. With no
// user store to authenticate against, it issues an access token for a fresh
// local identity so the protected API stays usable.
func LocalToken(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, expiresAt, err := jwtManager.GenerateToken(uuid.New(), "local", "user")
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to issue token")
			return
		}
		respondOK(c, http.StatusOK, TokenResponse{
			AccessToken: token,
			ExpiresAt:   expiresAt.Unix(),
		})
	}
}

func (h *AuthHandler) issueTokens(c *gin.Context, userID uuid.UUID, username, role string) (*TokenResponse, error) {
	accessToken, expiresAt, err := h.jwt.GenerateToken(userID, username, role)
	if err != nil {
		return nil, err
	}

	refreshToken, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := h.db.CreateUserSession(c.Request.Context(), userID, refreshToken, time.Now().Add(h.refreshDuration)); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.Unix(),
	}, nil
}
