package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domaingen "command-deck-server-go/internal/domain/generation"
	domainledger "command-deck-server-go/internal/domain/ledger"
	platformconfig "command-deck-server-go/internal/platform/config"
	platformerrors "command-deck-server-go/internal/platform/errors"
	platformlogging "command-deck-server-go/internal/platform/logging"
	platformtesting "command-deck-server-go/internal/platform/testing"
)

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"storage:init-database",
		"observability:setup-hooks",
		"domain:init-services",
		"auth:init-manager",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestInitGraphDependenciesResolvable(t *testing.T) {
	seen := make(map[string]struct{})
	for _, step := range InitGraph() {
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				t.Fatalf("step %s depends on %s which does not precede it", step.ID, dep)
			}
		}
		if step.Execute == nil {
			t.Fatalf("step %s has no execute function", step.ID)
		}
		seen[step.ID] = struct{}{}
	}
}

func TestExecuteInitStepsRunsInOrder(t *testing.T) {
	var order []string
	record := func(id string) stepFn {
		return func(context.Context, *appState) error {
			order = append(order, id)
			return nil
		}
	}

	steps := []initStep{
		{ID: "a", Execute: record("a")},
		{ID: "b", DependsOn: []string{"a"}, Execute: record("b")},
		{ID: "c", DependsOn: []string{"a", "b"}, Execute: record("c")},
	}
	if err := executeInitSteps(context.Background(), steps, &appState{}); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Fatalf("unexpected execution order: %s", got)
	}
}

func TestExecuteInitStepsRejectsUnmetDependency(t *testing.T) {
	steps := []initStep{
		{ID: "late", DependsOn: []string{"never-ran"}, Execute: func(context.Context, *appState) error { return nil }},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected dependency error")
	}
	if !platformerrors.IsKind(err, platformerrors.KindBootstrap) {
		t.Fatalf("expected bootstrap kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "never-ran") {
		t.Fatalf("error should name the missing dependency: %v", err)
	}
}

func TestExecuteInitStepsWrapsUntypedErrors(t *testing.T) {
	steps := []initStep{
		{
			ID:      "boom",
			Kind:    platformerrors.KindStorage,
			Execute: func(context.Context, *appState) error { return os.ErrPermission },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected step error")
	}
	if !platformerrors.IsKind(err, platformerrors.KindStorage) {
		t.Fatalf("expected step kind to wrap the failure, got %v", err)
	}
}

func TestExecuteInitStepsKeepsTypedErrors(t *testing.T) {
	typed := platformerrors.New(platformerrors.KindConfig, "config:load", "bad yaml")
	steps := []initStep{
		{
			ID:      "config:load",
			Kind:    platformerrors.KindBootstrap,
			Execute: func(context.Context, *appState) error { return typed },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindConfig) {
		t.Fatalf("typed errors must pass through unchanged, got %v", err)
	}
}

func TestExecuteInitStepsNilState(t *testing.T) {
	if err := executeInitSteps(context.Background(), InitGraph(), nil); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	tmp := t.TempDir()
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    "info",
		Dir:      tmp,
		Filename: "graph.log",
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logBootstrapGraph(InitGraph(), logger)
	logger.Close()

	data, err := os.ReadFile(filepath.Join(tmp, "graph.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "init sequence") {
		t.Fatalf("graph header missing in log output: %s", content)
	}
	for _, id := range []string{
		"config:load",
		"logging:init-provider",
		"storage:init-database",
		"observability:setup-hooks",
		"domain:init-services",
		"auth:init-manager",
	} {
		if !strings.Contains(content, id) {
			t.Fatalf("expected graph output to contain %q, got: %s", id, content)
		}
	}
}

func TestBuildGenerationBackendSelection(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)

	cfg := platformconfig.NewDefaultConfig()
	cfg.Generation.Backend = "cli"
	backend, err := buildGenerationBackend(cfg, logger)
	if err != nil {
		t.Fatalf("cli backend: %v", err)
	}
	if _, ok := backend.(*domaingen.CLIBackend); !ok {
		t.Fatalf("expected CLI backend, got %T", backend)
	}

	for _, name := range []string{"", "api", "API", "something-else"} {
		cfg.Generation.Backend = name
		backend, err = buildGenerationBackend(cfg, logger)
		if err != nil {
			t.Fatalf("api backend (%q): %v", name, err)
		}
		if _, ok := backend.(*domaingen.APIBackend); !ok {
			t.Fatalf("expected API backend for %q, got %T", name, backend)
		}
	}
}

func TestBuildLedgerStoreMemoryDriver(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)

	cfg := platformconfig.NewDefaultConfig()
	cfg.Ledger.Driver = domainledger.DriverMemory
	store, err := buildLedgerStore(cfg, logger)
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
}

func TestBuildLedgerStoreRedisRequiresAddr(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)

	cfg := platformconfig.NewDefaultConfig()
	cfg.Ledger.Driver = domainledger.DriverRedis
	cfg.Ledger.Redis.Addr = ""
	if _, err := buildLedgerStore(cfg, logger); err == nil {
		t.Fatal("expected error when redis addr is missing")
	}
}
