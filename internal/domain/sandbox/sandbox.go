// Package sandbox manages user-connected execution environments (Docker,
// Daytona, or custom VNC hosts) and keeps their reachability status fresh
// through HTTP probes.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"command-deck-server-go/internal/domain/eventbus"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/logging"
)

// Reachability states persisted on the sandbox row.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// DefaultProbeTimeout caps one reachability check.
const DefaultProbeTimeout = 5 * time.Second

var ErrSandboxNotFound = errors.New("sandbox not found")

// schemeRewriter turns websocket connection URLs into their HTTP
// equivalents; the probe only cares that the host answers at all.
var schemeRewriter = strings.NewReplacer("wss://", "https://", "ws://", "http://")

// HealthReport is the outcome of one reachability probe.
type HealthReport struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS *int   `json:"latency_ms,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Service manages sandbox rows and their probes.
type Service struct {
	db           *gorm.DB
	logger       *logging.Logger
	client       *http.Client
	probeTimeout time.Duration
}

// NewService wires the sandbox service. probeTimeout <= 0 selects the default.
func NewService(db *gorm.DB, logger *logging.Logger, probeTimeout time.Duration) *Service {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Service{
		db:           db,
		logger:       logger,
		client:       &http.Client{Timeout: probeTimeout},
		probeTimeout: probeTimeout,
	}
}

// Connect registers a sandbox for the user. New rows start disconnected
// until a probe proves otherwise.
func (s *Service) Connect(ctx context.Context, sandbox *models.Sandbox) error {
	if sandbox.Type == "" {
		sandbox.Type = "docker"
	}
	sandbox.Status = StatusDisconnected

	if err := s.db.WithContext(ctx).Create(sandbox).Error; err != nil {
		return err
	}

	s.logger.InfoTag("Sandbox", "sandbox registered", map[string]interface{}{
		"sandbox_id": sandbox.ID,
		"user_id":    sandbox.UserID,
		"name":       sandbox.Name,
		"type":       sandbox.Type,
	})
	return nil
}

// List returns the user's sandboxes, newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]models.Sandbox, error) {
	var rows []models.Sandbox
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get loads one sandbox scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, sandboxID uint) (*models.Sandbox, error) {
	var row models.Sandbox
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sandboxID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSandboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes one sandbox scoped to its owner.
func (s *Service) Delete(ctx context.Context, userID, sandboxID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sandboxID, userID).
		Delete(&models.Sandbox{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSandboxNotFound
	}

	s.logger.InfoTag("Sandbox", "sandbox deleted", map[string]interface{}{
		"sandbox_id": sandboxID,
		"user_id":    userID,
	})
	return nil
}

// Active returns the user's most recently connected sandbox, or (nil, nil)
// when none is connected.
func (s *Service) Active(ctx context.Context, userID uint) (*models.Sandbox, error) {
	var row models.Sandbox
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, StatusConnected).
		Order("last_heartbeat DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CheckHealth probes one sandbox on behalf of its owner, persists the
// resulting status and heartbeat, and publishes the state change.
func (s *Service) CheckHealth(ctx context.Context, userID, sandboxID uint) (*HealthReport, error) {
	row, err := s.Get(ctx, userID, sandboxID)
	if err != nil {
		return nil, err
	}
	return s.check(ctx, row)
}

// check runs the probe for an already-loaded row.
func (s *Service) check(ctx context.Context, row *models.Sandbox) (*HealthReport, error) {
	report := s.probe(ctx, row)

	if err := s.persistStatus(ctx, row.ID, report.Status); err != nil {
		s.logger.ErrorTag("Sandbox", "status update failed", map[string]interface{}{
			"sandbox_id": row.ID,
			"error":      err.Error(),
		})
		return nil, err
	}

	latency := 0
	if report.LatencyMS != nil {
		latency = *report.LatencyMS
	}
	eventbus.PublishAsync(eventbus.EventSandboxStatus, eventbus.SandboxEventData{
		SandboxID: row.ID,
		UserID:    row.UserID,
		Status:    report.Status,
		LatencyMS: latency,
	})

	s.logger.DebugTag("Sandbox", "health probe finished", map[string]interface{}{
		"sandbox_id": row.ID,
		"status":     report.Status,
		"message":    report.Message,
	})
	return report, nil
}

// probe performs the HTTP reachability check without touching storage.
func (s *Service) probe(ctx context.Context, row *models.Sandbox) *HealthReport {
	report := &HealthReport{ID: row.ID, Name: row.Name}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	checkURL := schemeRewriter.Replace(row.ConnectionURL)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, checkURL, nil)
	if err != nil {
		report.Status = StatusError
		report.Message = err.Error()
		return report
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		report.Status, report.Message = classifyProbeError(err)
		return report
	}
	defer resp.Body.Close()

	latency := int(time.Since(start).Milliseconds())
	report.LatencyMS = &latency

	if resp.StatusCode < http.StatusInternalServerError {
		report.Status = StatusConnected
		report.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	} else {
		report.Status = StatusError
		report.Message = fmt.Sprintf("Server error (HTTP %d)", resp.StatusCode)
	}
	return report
}

// classifyProbeError maps transport failures to sandbox states. Refused
// and timed-out probes mean the sandbox is down; anything else is a fault
// worth surfacing verbatim.
func classifyProbeError(err error) (string, string) {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusDisconnected, "Connection refused - is the sandbox running?"
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return StatusDisconnected, "Connection timeout after 5 seconds"
	}
	return StatusError, err.Error()
}

func (s *Service) persistStatus(ctx context.Context, sandboxID uint, status string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&models.Sandbox{}).
		Where("id = ?", sandboxID).
		Updates(map[string]interface{}{
			"status":         status,
			"last_heartbeat": now,
		}).Error
}

// listForSweep loads every registered sandbox regardless of owner.
func (s *Service) listForSweep(ctx context.Context) ([]models.Sandbox, error) {
	var rows []models.Sandbox
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// checkByID is the sweep entrypoint: owner scoping does not apply.
func (s *Service) checkByID(ctx context.Context, sandboxID uint) error {
	var row models.Sandbox
	err := s.db.WithContext(ctx).First(&row, sandboxID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Deleted between listing and probing; nothing to do.
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.check(ctx, &row)
	return err
}
