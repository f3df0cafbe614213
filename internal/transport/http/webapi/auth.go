package webapi

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/domain/auth"
	"command-deck-server-go/internal/platform/errors"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	AccessToken string `json:"access_token"`
}

// handleRegister creates a password-backed user and issues its first token.
// @Summary Register a new user
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Registration payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /auth/register [post]
func (s *Service) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	user, token, err := s.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.IsKind(err, errors.KindValidation) {
			respondError(c, http.StatusBadRequest, errors.UserMessage(err))
			return
		}
		s.logger.ErrorTag("HTTP", "registration failed", map[string]interface{}{
			"username": req.Username,
			"error":    err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"token": token, "user": user}, "Registered successfully")
}

// handleLogin exchanges username/password for a token.
// @Summary Log in with username and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Login payload"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /auth/login [post]
func (s *Service) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	user, token, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.IsKind(err, errors.KindUnauthorized):
			respondError(c, http.StatusUnauthorized, errors.UserMessage(err))
		case errors.IsKind(err, errors.KindValidation):
			respondError(c, http.StatusBadRequest, errors.UserMessage(err))
		default:
			s.logger.ErrorTag("HTTP", "login failed", map[string]interface{}{
				"username": req.Username,
				"error":    err.Error(),
			})
			respondError(c, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"token": token, "user": user}, "Login successful")
}

// handleGoogleLogin exchanges a Google access token for a local session,
// creating or linking the user record as needed.
// @Summary Log in with a Google access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body googleLoginRequest true "Google token payload"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /auth/google [post]
func (s *Service) handleGoogleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	user, token, err := s.auth.LoginWithGoogle(c.Request.Context(), req.AccessToken)
	if err != nil {
		switch {
		case errors.IsKind(err, errors.KindValidation):
			respondError(c, http.StatusBadRequest, errors.UserMessage(err))
		case errors.IsKind(err, errors.KindUnauthorized):
			respondError(c, http.StatusUnauthorized, errors.UserMessage(err))
		default:
			s.logger.ErrorTag("HTTP", "google login failed", map[string]interface{}{
				"error": err.Error(),
			})
			respondError(c, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"token": token, "user": user}, "Login successful")
}

// handleMe returns the authenticated user's profile.
// @Summary Get the current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /auth/me [get]
func (s *Service) handleMe(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	user, err := s.auth.Me(c.Request.Context(), userID)
	if err != nil {
		if stderrors.Is(err, auth.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		s.logger.ErrorTag("HTTP", "user lookup failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to load user")
		return
	}

	respondSuccess(c, http.StatusOK, user, "")
}

// handleLogout revokes the presented token's session. Always succeeds from
// the client's point of view; a token that no longer verifies is already
// as logged out as it can get.
// @Summary Log out
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /auth/logout [post]
func (s *Service) handleLogout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := s.auth.Logout(c.Request.Context(), token); err != nil {
		s.logger.WarnTag("HTTP", "logout cleanup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	respondSuccess(c, http.StatusOK, nil, "Logged out")
}
