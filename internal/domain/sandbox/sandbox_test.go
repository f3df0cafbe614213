package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"command-deck-server-go/internal/models"
	platformtesting "command-deck-server-go/internal/platform/testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:sandbox-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Sandbox{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewService(db, platformtesting.SetupTestLogger(t), time.Second)
}

func registerSandbox(t *testing.T, service *Service, userID uint, name, connectionURL string) *models.Sandbox {
	t.Helper()
	row := &models.Sandbox{
		UserID:        userID,
		Name:          name,
		ConnectionURL: connectionURL,
	}
	if err := service.Connect(context.Background(), row); err != nil {
		t.Fatalf("connect sandbox %s: %v", name, err)
	}
	return row
}

// wsTarget rewrites an httptest server URL into the ws:// form users
// actually register.
func wsTarget(server *httptest.Server) string {
	return strings.Replace(server.URL, "http://", "ws://", 1)
}

func TestConnectDefaultsAndList(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	first := registerSandbox(t, service, 1, "workstation", "ws://host-a:6080")
	if first.Type != "docker" {
		t.Fatalf("expected default type docker, got %q", first.Type)
	}
	if first.Status != StatusDisconnected {
		t.Fatalf("new sandboxes must start disconnected, got %q", first.Status)
	}

	second := &models.Sandbox{
		UserID:        1,
		Name:          "daytona-dev",
		Type:          "daytona",
		ConnectionURL: "wss://host-b",
		VNCURL:        "wss://host-b/vnc",
	}
	if err := service.Connect(ctx, second); err != nil {
		t.Fatalf("connect second: %v", err)
	}
	registerSandbox(t, service, 2, "foreign", "ws://other:6080")

	rows, err := service.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 sandboxes for user 1, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Name == "foreign" {
			t.Fatal("listing leaked another user's sandbox")
		}
	}
}

func TestDeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	row := registerSandbox(t, service, 1, "mine", "ws://host:6080")

	if err := service.Delete(ctx, 2, row.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Fatalf("expected ErrSandboxNotFound for foreign delete, got %v", err)
	}
	if err := service.Delete(ctx, 1, row.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.Get(ctx, 1, row.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}
}

func TestCheckHealthReachable(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	row := registerSandbox(t, service, 1, "reachable", wsTarget(server))

	report, err := service.CheckHealth(ctx, 1, row.ID)
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if report.Status != StatusConnected {
		t.Fatalf("expected connected, got %q (%s)", report.Status, report.Message)
	}
	if report.Message != "Reachable (HTTP 204)" {
		t.Fatalf("unexpected message: %q", report.Message)
	}
	if report.LatencyMS == nil || *report.LatencyMS < 0 {
		t.Fatalf("expected measured latency, got %v", report.LatencyMS)
	}

	stored, err := service.Get(ctx, 1, row.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != StatusConnected {
		t.Fatalf("status not persisted, got %q", stored.Status)
	}
	if stored.LastHeartbeat == nil {
		t.Fatal("heartbeat not persisted")
	}
}

func TestCheckHealthServerError(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	row := registerSandbox(t, service, 1, "broken", wsTarget(server))

	report, err := service.CheckHealth(ctx, 1, row.ID)
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if report.Status != StatusError {
		t.Fatalf("expected error status, got %q", report.Status)
	}
	if report.Message != "Server error (HTTP 502)" {
		t.Fatalf("unexpected message: %q", report.Message)
	}
}

func TestCheckHealthRefused(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	// Grab a port that nothing listens on anymore.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := wsTarget(server)
	server.Close()

	row := registerSandbox(t, service, 1, "offline", target)

	report, err := service.CheckHealth(ctx, 1, row.ID)
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if report.Status != StatusDisconnected {
		t.Fatalf("expected disconnected, got %q (%s)", report.Status, report.Message)
	}
	if report.Message != "Connection refused - is the sandbox running?" {
		t.Fatalf("unexpected message: %q", report.Message)
	}
	if report.LatencyMS != nil {
		t.Fatal("failed probes must not report latency")
	}
}

func TestCheckHealthScopedToOwner(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	row := registerSandbox(t, service, 1, "mine", "ws://host:6080")
	if _, err := service.CheckHealth(ctx, 2, row.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Fatalf("expected ErrSandboxNotFound for foreign check, got %v", err)
	}
}

func TestActivePicksFreshestConnected(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	stale := registerSandbox(t, service, 1, "stale", "ws://host-a:6080")
	fresh := registerSandbox(t, service, 1, "fresh", "ws://host-b:6080")
	registerSandbox(t, service, 1, "down", "ws://host-c:6080")

	markConnected := func(id uint, at time.Time) {
		err := service.db.Model(&models.Sandbox{}).Where("id = ?", id).
			Updates(map[string]interface{}{"status": StatusConnected, "last_heartbeat": at}).Error
		if err != nil {
			t.Fatalf("mark connected: %v", err)
		}
	}
	markConnected(stale.ID, time.Now().Add(-time.Hour))
	markConnected(fresh.ID, time.Now())

	active, err := service.Active(ctx, 1)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != fresh.ID {
		t.Fatalf("expected freshest connected sandbox, got %+v", active)
	}

	none, err := service.Active(ctx, 2)
	if err != nil {
		t.Fatalf("active for empty user: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for user without connected sandboxes, got %+v", none)
	}
}

func TestSweeperRefreshesAllRows(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	up := registerSandbox(t, service, 1, "up", wsTarget(server))
	down := registerSandbox(t, service, 2, "down", "ws://127.0.0.1:1")

	sweeper := NewSweeper(service, platformtesting.SetupTestLogger(t), 25*time.Millisecond)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		upRow, err := service.Get(ctx, 1, up.ID)
		if err != nil {
			t.Fatalf("reload up: %v", err)
		}
		downRow, err := service.Get(ctx, 2, down.ID)
		if err != nil {
			t.Fatalf("reload down: %v", err)
		}
		if upRow.Status == StatusConnected && downRow.LastHeartbeat != nil {
			if downRow.Status == StatusConnected {
				t.Fatalf("unreachable sandbox marked connected")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sweeper never refreshed both sandboxes")
}
