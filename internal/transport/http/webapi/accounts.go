package webapi

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/domain/ledger"
	"command-deck-server-go/internal/models"
)

type addAPIKeyRequest struct {
	Name       string `json:"name"`
	APIKey     string `json:"api_key"`
	Provider   string `json:"provider"`
	DailyLimit int    `json:"daily_limit"`
}

type addOAuthAccountRequest struct {
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	DailyLimit  int    `json:"daily_limit"`
}

// accountView is the client-facing projection of an account row. Secret
// material never leaves the server.
type accountView struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	Provider       string    `json:"provider"`
	DailyLimit     int       `json:"daily_limit"`
	DailyUsed      int       `json:"daily_used"`
	QuotaRemaining int       `json:"quota_remaining"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func accountToView(a *models.Account) accountView {
	return accountView{
		ID:             a.ID,
		Name:           a.Name,
		Provider:       a.Provider,
		DailyLimit:     a.DailyLimit,
		DailyUsed:      a.DailyUsed,
		QuotaRemaining: a.Remaining(),
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
}

// handleAccountList lists the user's generation accounts with quota counters
// already rolled over to the current day.
// @Summary List generation accounts
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /accounts [get]
func (s *Service) handleAccountList(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	accounts, err := s.ledger.List(c.Request.Context(), userID)
	if err != nil {
		s.logger.ErrorTag("HTTP", "account list failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, accountToView(&accounts[i]))
	}
	respondSuccess(c, http.StatusOK, views, "")
}

// handleAccountCreate registers an API-key backed account.
// @Summary Add an API key account
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body addAPIKeyRequest true "Account payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /accounts [post]
func (s *Service) handleAccountCreate(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req addAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Name == "" || req.APIKey == "" {
		respondError(c, http.StatusBadRequest, "Name and API key are required")
		return
	}
	if req.Provider == "" {
		req.Provider = "gemini_api_key"
	}
	if req.DailyLimit <= 0 {
		req.DailyLimit = 250
	}

	account := &models.Account{
		UserID:     userID,
		Name:       req.Name,
		Provider:   req.Provider,
		APIKey:     req.APIKey,
		DailyLimit: req.DailyLimit,
		IsActive:   true,
	}
	if err := s.ledger.Create(c.Request.Context(), account); err != nil {
		s.logger.ErrorTag("HTTP", "account create failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to create account")
		return
	}

	respondSuccess(c, http.StatusOK, accountToView(account), "Account created")
}

// handleAccountCreateOAuth registers an account backed by an OAuth access
// token instead of an API key. These follow the higher OAuth daily quota
// unless the client says otherwise.
// @Summary Add an OAuth-backed account
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body addOAuthAccountRequest true "Account payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /accounts/oauth [post]
func (s *Service) handleAccountCreateOAuth(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req addOAuthAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Name == "" || req.AccessToken == "" {
		respondError(c, http.StatusBadRequest, "Name and access token are required")
		return
	}
	if req.DailyLimit <= 0 {
		req.DailyLimit = 1000
	}

	account := &models.Account{
		UserID:      userID,
		Name:        req.Name,
		Provider:    "oauth",
		AccessToken: req.AccessToken,
		DailyLimit:  req.DailyLimit,
		IsActive:    true,
	}
	if err := s.ledger.Create(c.Request.Context(), account); err != nil {
		s.logger.ErrorTag("HTTP", "oauth account create failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to create account")
		return
	}

	respondSuccess(c, http.StatusOK, accountToView(account), "Account created")
}

// handleAccountStatus reports the aggregate quota rollup across the user's
// whole account fleet.
// @Summary Aggregate quota status
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ledger.QuotaStatus
// @Router /accounts/status [get]
func (s *Service) handleAccountStatus(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	status, err := s.ledger.AggregateStatus(c.Request.Context(), userID)
	if err != nil {
		s.logger.ErrorTag("HTTP", "quota status failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to compute quota status")
		return
	}

	respondSuccess(c, http.StatusOK, status, "")
}

// handleAccountToggle flips an account's active flag.
// @Summary Toggle account active state
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Account id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /accounts/{id}/toggle [put]
func (s *Service) handleAccountToggle(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}
	accountID, ok := s.pathID(c)
	if !ok {
		return
	}

	active, err := s.ledger.Toggle(c.Request.Context(), userID, accountID)
	if err != nil {
		if stderrors.Is(err, ledger.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "Account not found")
			return
		}
		s.logger.ErrorTag("HTTP", "account toggle failed", map[string]interface{}{
			"user_id":    userID,
			"account_id": accountID,
			"error":      err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to toggle account")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"is_active": active}, "Account updated")
}

// handleAccountDelete removes an account permanently.
// @Summary Delete an account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Account id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /accounts/{id} [delete]
func (s *Service) handleAccountDelete(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}
	accountID, ok := s.pathID(c)
	if !ok {
		return
	}

	if err := s.ledger.Delete(c.Request.Context(), userID, accountID); err != nil {
		if stderrors.Is(err, ledger.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "Account not found")
			return
		}
		s.logger.ErrorTag("HTTP", "account delete failed", map[string]interface{}{
			"user_id":    userID,
			"account_id": accountID,
			"error":      err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to delete account")
		return
	}

	respondSuccess(c, http.StatusOK, nil, "Account deleted")
}
