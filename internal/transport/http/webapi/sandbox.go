package webapi

import (
	stderrors "errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"command-deck-server-go/internal/domain/sandbox"
	"command-deck-server-go/internal/models"
)

type connectSandboxRequest struct {
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	ConnectionURL string                 `json:"connection_url"`
	VNCURL        string                 `json:"vnc_url"`
	Specs         map[string]interface{} `json:"specs"`
}

// handleSandboxList lists the user's registered sandboxes, newest first.
// @Summary List sandboxes
// @Tags Sandbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /sandbox [get]
func (s *Service) handleSandboxList(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	rows, err := s.sandbox.List(c.Request.Context(), userID)
	if err != nil {
		s.logger.ErrorTag("HTTP", "sandbox list failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to list sandboxes")
		return
	}

	respondSuccess(c, http.StatusOK, rows, "")
}

// handleSandboxConnect registers a sandbox endpoint for the user. The row
// starts disconnected until a health check proves otherwise.
// @Summary Connect a sandbox
// @Tags Sandbox
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body connectSandboxRequest true "Sandbox payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /sandbox/connect [post]
func (s *Service) handleSandboxConnect(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req connectSandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Name == "" || req.ConnectionURL == "" {
		respondError(c, http.StatusBadRequest, "Name and connection URL are required")
		return
	}

	row := &models.Sandbox{
		UserID:        userID,
		Name:          req.Name,
		Type:          req.Type,
		ConnectionURL: req.ConnectionURL,
		VNCURL:        req.VNCURL,
	}
	if len(req.Specs) > 0 {
		raw, err := sonic.Marshal(req.Specs)
		if err != nil {
			respondError(c, http.StatusBadRequest, "Invalid specs payload")
			return
		}
		row.Specs = datatypes.JSON(raw)
	}

	if err := s.sandbox.Connect(c.Request.Context(), row); err != nil {
		s.logger.ErrorTag("HTTP", "sandbox connect failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to register sandbox")
		return
	}

	respondSuccess(c, http.StatusOK, row, "Sandbox connected")
}

// handleSandboxActive returns the most recently connected sandbox, or null
// data when none is currently connected.
// @Summary Active sandbox
// @Tags Sandbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /sandbox/active [get]
func (s *Service) handleSandboxActive(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	row, err := s.sandbox.Active(c.Request.Context(), userID)
	if err != nil {
		s.logger.ErrorTag("HTTP", "active sandbox lookup failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to load active sandbox")
		return
	}
	if row == nil {
		respondSuccess(c, http.StatusOK, nil, "No connected sandbox")
		return
	}

	respondSuccess(c, http.StatusOK, row, "")
}

// handleSandboxHealth probes one sandbox and persists the outcome.
// @Summary Check sandbox health
// @Tags Sandbox
// @Produce json
// @Security BearerAuth
// @Param id path int true "Sandbox id"
// @Success 200 {object} sandbox.HealthReport
// @Failure 404 {object} map[string]interface{}
// @Router /sandbox/{id}/health [post]
func (s *Service) handleSandboxHealth(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}
	sandboxID, ok := s.pathID(c)
	if !ok {
		return
	}

	report, err := s.sandbox.CheckHealth(c.Request.Context(), userID, sandboxID)
	if err != nil {
		if stderrors.Is(err, sandbox.ErrSandboxNotFound) {
			respondError(c, http.StatusNotFound, "Sandbox not found")
			return
		}
		s.logger.ErrorTag("HTTP", "sandbox health check failed", map[string]interface{}{
			"user_id":    userID,
			"sandbox_id": sandboxID,
			"error":      err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to check sandbox health")
		return
	}

	respondSuccess(c, http.StatusOK, report, "")
}

// handleSandboxDelete removes a sandbox registration.
// @Summary Delete a sandbox
// @Tags Sandbox
// @Produce json
// @Security BearerAuth
// @Param id path int true "Sandbox id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /sandbox/{id} [delete]
func (s *Service) handleSandboxDelete(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}
	sandboxID, ok := s.pathID(c)
	if !ok {
		return
	}

	if err := s.sandbox.Delete(c.Request.Context(), userID, sandboxID); err != nil {
		if stderrors.Is(err, sandbox.ErrSandboxNotFound) {
			respondError(c, http.StatusNotFound, "Sandbox not found")
			return
		}
		s.logger.ErrorTag("HTTP", "sandbox delete failed", map[string]interface{}{
			"user_id":    userID,
			"sandbox_id": sandboxID,
			"error":      err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to delete sandbox")
		return
	}

	respondSuccess(c, http.StatusOK, nil, "Sandbox deleted")
}
