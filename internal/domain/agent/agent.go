// Package agent turns free-form goals into ordered, tool-tagged execution
// plans by prompting the generation pipeline for strict JSON.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"command-deck-server-go/internal/domain/memory"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/errors"
	"command-deck-server-go/internal/platform/logging"
)

// PlanStep is one ordered action of a generated plan.
type PlanStep struct {
	ID          int    `json:"id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Tool        string `json:"tool"`
}

// Plan is the parsed planning result: the model may rewrite the goal.
type Plan struct {
	Goal  string     `json:"goal"`
	Steps []PlanStep `json:"steps"`
}

// Generator is the unary slice of the rotating client the planner drives.
type Generator interface {
	Generate(ctx context.Context, userID uint, prompt string, contextItems []string) (string, error)
}

// ContextSource supplies prior interactions as planning grounding.
type ContextSource interface {
	RetrieveContext(ctx context.Context, userID uint, query string, limit int) ([]memory.ContextItem, error)
}

// planningInstruction forces a machine-readable plan; models that wrap the
// payload in markdown fences anyway are cleaned up during parsing.
const planningInstruction = `You are an autonomous planner. Break down the user's goal into a logical sequence of steps.
Output strictly valid JSON with this structure:
{
    "goal": "rewritten goal",
    "steps": [
        {"id": 1, "action": "cmd_run", "description": "install dependencies", "tool": "shell"},
        {"id": 2, "action": "file_write", "description": "create config", "tool": "editor"}
    ]
}
Do not include markdown formatting like ` + "```json." + `
`

const defaultPlanListLimit = 20

// Service generates and stores agent plans.
type Service struct {
	db     *gorm.DB
	client Generator
	memory ContextSource
	logger *logging.Logger
}

// NewService wires the planner.
func NewService(db *gorm.DB, client Generator, contextSource ContextSource, logger *logging.Logger) *Service {
	return &Service{
		db:     db,
		client: client,
		memory: contextSource,
		logger: logger,
	}
}

// CreatePlan asks the model to decompose the goal, validates the returned
// JSON and persists the accepted plan. Generation errors pass through with
// their taxonomy kind intact.
func (s *Service) CreatePlan(ctx context.Context, userID uint, goal string) (*Plan, error) {
	contextItems, err := s.memory.RetrieveContext(ctx, userID, goal, 0)
	if err != nil {
		s.logger.WarnTag("Agent", "context retrieval failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		contextItems = nil
	}
	contextTexts := make([]string, 0, len(contextItems))
	for _, item := range contextItems {
		contextTexts = append(contextTexts, item.Text())
	}

	prompt := planningInstruction + "\n\nUser Goal: " + goal
	raw, err := s.client.Generate(ctx, userID, prompt, contextTexts)
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(raw)
	if err != nil {
		s.logger.WarnTag("Agent", "model returned unusable plan", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, errors.Wrap(errors.KindBackend, "create_plan", "model returned a malformed plan", err)
	}

	if err := s.persist(ctx, userID, plan); err != nil {
		// The caller still gets the plan; only the audit copy is lost.
		s.logger.ErrorTag("Agent", "plan persistence failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	s.logger.InfoTag("Agent", "plan generated", map[string]interface{}{
		"user_id": userID,
		"steps":   len(plan.Steps),
	})
	return plan, nil
}

// Plans lists the user's stored plans, newest first.
func (s *Service) Plans(ctx context.Context, userID uint, limit int) ([]models.AgentPlan, error) {
	if limit <= 0 {
		limit = defaultPlanListLimit
	}

	var rows []models.AgentPlan
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) persist(ctx context.Context, userID uint, plan *Plan) error {
	steps, err := sonic.Marshal(plan.Steps)
	if err != nil {
		return err
	}
	row := models.AgentPlan{
		UserID: userID,
		Goal:   plan.Goal,
		Steps:  datatypes.JSON(steps),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// parsePlan strips the markdown fences some models insist on and decodes
// the plan, rejecting payloads without a goal or steps.
func parsePlan(raw string) (*Plan, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var plan Plan
	if err := sonic.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if plan.Goal == "" {
		return nil, fmt.Errorf("plan is missing a goal")
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	return &plan, nil
}
