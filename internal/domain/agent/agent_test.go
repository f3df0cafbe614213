package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"command-deck-server-go/internal/domain/memory"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/errors"
	platformtesting "command-deck-server-go/internal/platform/testing"
)

type fakeGenerator struct {
	response    string
	err         error
	prompt      string
	contextSeen []string
}

func (f *fakeGenerator) Generate(ctx context.Context, userID uint, prompt string, contextItems []string) (string, error) {
	f.prompt = prompt
	f.contextSeen = contextItems
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeContextSource struct {
	items []memory.ContextItem
}

func (f *fakeContextSource) RetrieveContext(ctx context.Context, userID uint, query string, limit int) ([]memory.ContextItem, error) {
	return f.items, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:agent-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AgentPlan{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

const validPlanJSON = `{
	"goal": "Deploy the web app",
	"steps": [
		{"id": 1, "action": "cmd_run", "description": "install dependencies", "tool": "shell"},
		{"id": 2, "action": "file_write", "description": "write the service unit", "tool": "editor"}
	]
}`

func TestCreatePlanParsesAndPersists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	gen := &fakeGenerator{response: validPlanJSON}
	service := NewService(db, gen, &fakeContextSource{}, platformtesting.SetupTestLogger(t))

	plan, err := service.CreatePlan(ctx, 1, "deploy the app")
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if plan.Goal != "Deploy the web app" {
		t.Fatalf("unexpected goal: %q", plan.Goal)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].Tool != "shell" || plan.Steps[1].Action != "file_write" {
		t.Fatalf("unexpected steps: %+v", plan.Steps)
	}

	rows, err := service.Plans(ctx, 1, 0)
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted plan, got %d", len(rows))
	}
	var stored []PlanStep
	if err := sonic.Unmarshal(rows[0].Steps, &stored); err != nil {
		t.Fatalf("stored steps not decodable: %v", err)
	}
	if len(stored) != 2 || stored[1].Description != "write the service unit" {
		t.Fatalf("unexpected stored steps: %+v", stored)
	}
}

func TestCreatePlanStripsMarkdownFences(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{response: "```json\n" + validPlanJSON + "\n```"}
	service := NewService(newTestDB(t), gen, &fakeContextSource{}, platformtesting.SetupTestLogger(t))

	plan, err := service.CreatePlan(ctx, 1, "deploy the app")
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
}

func TestCreatePlanPromptFraming(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{response: validPlanJSON}
	source := &fakeContextSource{items: []memory.ContextItem{
		{UserPrompt: "what is systemd", AIResponse: "An init system."},
	}}
	service := NewService(newTestDB(t), gen, source, platformtesting.SetupTestLogger(t))

	if _, err := service.CreatePlan(ctx, 1, "deploy the app"); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	if !strings.HasPrefix(gen.prompt, "You are an autonomous planner.") {
		t.Fatalf("prompt must lead with the planner instruction, got %q", gen.prompt[:40])
	}
	if !strings.HasSuffix(gen.prompt, "\n\nUser Goal: deploy the app") {
		t.Fatalf("prompt must end with the user goal, got %q", gen.prompt)
	}
	if len(gen.contextSeen) != 1 || !strings.Contains(gen.contextSeen[0], "what is systemd") {
		t.Fatalf("expected memory context to reach the generator, got %v", gen.contextSeen)
	}
}

func TestCreatePlanRejectsUnusableOutput(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		response string
	}{
		{name: "prose", response: "I cannot generate a plan for that."},
		{name: "missing goal", response: `{"steps":[{"id":1,"action":"a","description":"b","tool":"c"}]}`},
		{name: "no steps", response: `{"goal":"g","steps":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			gen := &fakeGenerator{response: tc.response}
			service := NewService(db, gen, &fakeContextSource{}, platformtesting.SetupTestLogger(t))

			_, err := service.CreatePlan(ctx, 1, "goal")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.IsKind(err, errors.KindBackend) {
				t.Fatalf("expected backend kind, got %v", err)
			}

			rows, listErr := service.Plans(ctx, 1, 0)
			if listErr != nil {
				t.Fatalf("list plans: %v", listErr)
			}
			if len(rows) != 0 {
				t.Fatal("rejected plans must not be persisted")
			}
		})
	}
}

func TestCreatePlanPropagatesGenerationErrors(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{err: errors.New(errors.KindNoQuota, "bind_account", "No AI accounts with available quota. Add more accounts or wait for quota reset.")}
	service := NewService(newTestDB(t), gen, &fakeContextSource{}, platformtesting.SetupTestLogger(t))

	_, err := service.CreatePlan(ctx, 1, "goal")
	if !errors.IsKind(err, errors.KindNoQuota) {
		t.Fatalf("expected the generation error kind to pass through, got %v", err)
	}
}

func TestPlansScopedToUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	gen := &fakeGenerator{response: validPlanJSON}
	service := NewService(db, gen, &fakeContextSource{}, platformtesting.SetupTestLogger(t))

	if _, err := service.CreatePlan(ctx, 1, "first"); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := service.CreatePlan(ctx, 2, "foreign"); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	rows, err := service.Plans(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only user 1 plans, got %d", len(rows))
	}
}
