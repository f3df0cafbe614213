package webapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleHistory returns the user's most recent interactions, newest first.
// @Summary Interaction history
// @Tags Memory
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries to return"
// @Success 200 {object} map[string]interface{}
// @Router /memory/history [get]
func (s *Service) handleHistory(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		respondError(c, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := s.memory.History(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.ErrorTag("HTTP", "history fetch failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to load history")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	}, "")
}

// handleHistoryClear drops the user's entire interaction history.
// @Summary Clear interaction history
// @Tags Memory
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /memory/history [delete]
func (s *Service) handleHistoryClear(c *gin.Context) {
	userID, ok := s.requireUser(c)
	if !ok {
		return
	}

	if err := s.memory.Clear(c.Request.Context(), userID); err != nil {
		s.logger.ErrorTag("HTTP", "history clear failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to clear history")
		return
	}

	respondSuccess(c, http.StatusOK, nil, "History cleared")
}
