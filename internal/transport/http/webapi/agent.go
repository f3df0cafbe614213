package webapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/platform/errors"
)

type planRequest struct {
	Goal string `json:"goal"`
}

// handleAgentPlan asks the model to decompose a goal into ordered steps.
// @Summary Generate an execution plan
// @Tags Agent
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body planRequest true "Planning goal"
// @Success 200 {object} agent.Plan
// @Failure 500 {object} map[string]interface{}
// @Router /agent/plan [post]
func (s *Service) handleAgentPlan(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Goal == "" {
		respondError(c, http.StatusBadRequest, "Goal is required")
		return
	}

	plan, err := s.agent.CreatePlan(c.Request.Context(), userID, req.Goal)
	if err != nil {
		s.logger.ErrorTag("HTTP", "planning failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Planning failed: "+errors.UserMessage(err))
		return
	}

	respondSuccess(c, http.StatusOK, plan, "")
}

// handleAgentPlans lists previously generated plans, newest first.
// @Summary List stored plans
// @Tags Agent
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum plans to return"
// @Success 200 {object} map[string]interface{}
// @Router /agent/plans [get]
func (s *Service) handleAgentPlans(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		respondError(c, http.StatusBadRequest, "Invalid limit")
		return
	}

	plans, err := s.agent.Plans(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.ErrorTag("HTTP", "plan list failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to list plans")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"plans": plans,
		"count": len(plans),
	}, "")
}
