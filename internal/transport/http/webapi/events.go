package webapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/domain/eventbus"
	"command-deck-server-go/internal/domain/eventbus/repository"
)

const defaultEventLimit = 50

// handleEventLog queries the audit trail. Exactly one filter is applied, in
// precedence order: session_id, user_id, since/until, then event type. With
// no filter the recent quota and generation failures are returned, which is
// what the dashboard's activity panel shows by default.
// @Summary Audit trail query
// @Tags System
// @Security BearerAuth
// @Param type query string false "event type"
// @Param session_id query string false "session id"
// @Param user_id query string false "user id"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "max rows for type queries"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/events [get]
func (s *Service) handleEventLog(c *gin.Context) {
	if s.events == nil {
		respondError(c, http.StatusServiceUnavailable, "Audit trail not available")
		return
	}
	ctx := c.Request.Context()

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	var (
		events []repository.Event
		err    error
	)
	switch {
	case c.Query("session_id") != "":
		events, err = s.events.FindBySessionID(ctx, c.Query("session_id"))
	case c.Query("user_id") != "":
		events, err = s.events.FindByUserID(ctx, c.Query("user_id"))
	case c.Query("since") != "" || c.Query("until") != "":
		var since, until time.Time
		if since, until, err = parseEventWindow(c.Query("since"), c.Query("until")); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid time range")
			return
		}
		events, err = s.events.FindByTimeRange(ctx, since, until)
	case c.Query("type") != "":
		events, err = s.events.FindByEventType(ctx, c.Query("type"), limit)
	default:
		events, err = s.events.FindByEventType(ctx, eventbus.EventGenerationError, limit)
	}
	if err != nil {
		s.logger.ErrorTag("Events", "audit query failed", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(c, http.StatusInternalServerError, "Failed to query events")
		return
	}

	stats, err := s.events.GetEventStats(ctx)
	if err != nil {
		s.logger.WarnTag("Events", "audit stats failed", map[string]interface{}{
			"error": err.Error(),
		})
		stats = map[string]int64{}
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
		"stats":  stats,
	}, "")
}

// parseEventWindow resolves the since/until pair, defaulting the open end.
func parseEventWindow(sinceRaw, untilRaw string) (time.Time, time.Time, error) {
	since := time.Time{}
	until := time.Now()

	if sinceRaw != "" {
		parsed, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		since = parsed
	}
	if untilRaw != "" {
		parsed, err := time.Parse(time.RFC3339, untilRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		until = parsed
	}
	return since, until, nil
}
