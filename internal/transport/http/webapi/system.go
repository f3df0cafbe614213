package webapi

import (
	"net/http"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleBanner answers the root path when no dashboard build is present.
func (s *Service) handleBanner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "online",
		"system": "Gemini Command Deck Gateway",
	})
}

// handleSystemStatus reports process and host health plus the readiness of
// the gateway's moving parts. Host metrics degrade to null when the probe
// fails; the endpoint itself never does.
// @Summary System status
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/status [get]
func (s *Service) handleSystemStatus(c *gin.Context) {
	ctx := c.Request.Context()

	hostInfo := gin.H{}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		hostInfo["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hostInfo["memory_total"] = vm.Total
		hostInfo["memory_used"] = vm.Used
		hostInfo["memory_percent"] = vm.UsedPercent
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		hostInfo["uptime_seconds"] = uptime
	}

	cliStatus := "not_found"
	if s.config.Generation.CLICommand != "" {
		if _, err := exec.LookPath(s.config.Generation.CLICommand); err == nil {
			cliStatus = "detected"
		}
	}

	authStatus := "disabled"
	if s.config.Auth.Enabled {
		authStatus = "enabled"
	}

	activeSessions := 0
	if s.sessions != nil {
		activeSessions = s.sessions.Count()
	}

	var sessionStats map[string]any
	if stats, err := s.auth.SessionStats(ctx); err == nil {
		sessionStats = stats
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"status":         "online",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"host":           hostInfo,
		"components": gin.H{
			"gemini_cli": cliStatus,
			"backend":    s.config.Generation.Backend,
			"model":      s.config.Generation.ModelName,
			"auth":       authStatus,
			"websocket":  s.config.Web.Websocket,
		},
		"active_sessions": activeSessions,
		"auth_sessions":   sessionStats,
	}, "")
}

// handleSessionList reports the live websocket sessions. Unlike the public
// status endpoint this exposes who is connected, so it sits behind auth.
// @Summary Live websocket sessions
// @Tags System
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/sessions [get]
func (s *Service) handleSessionList(c *gin.Context) {
	if s.sessions == nil {
		respondSuccess(c, http.StatusOK, gin.H{"sessions": []any{}, "count": 0}, "")
		return
	}

	infos := s.sessions.Sessions()
	respondSuccess(c, http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	}, "")
}
