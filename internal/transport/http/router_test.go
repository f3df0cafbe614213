package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/platform/config"
	platformtesting "command-deck-server-go/internal/platform/testing"
)

func buildTestRouter(t *testing.T, staticRoot string) *Router {
	t.Helper()
	cfg := config.NewDefaultConfig()
	router, err := Build(Options{
		Config:     cfg,
		Logger:     platformtesting.SetupTestLogger(t),
		StaticRoot: staticRoot,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return router
}

func TestUnknownAPIRouteReturnsJSON404(t *testing.T) {
	router := buildTestRouter(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown api route returned %d, want 404", rec.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected a JSON envelope, got %q: %v", rec.Body.String(), err)
	}
	if resp.Success || resp.Message != "Route not found" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestDashboardFallbackServesIndex(t *testing.T) {
	staticRoot := t.TempDir()
	index := []byte("<html><body>command deck</body></html>")
	if err := os.WriteFile(filepath.Join(staticRoot, "index.html"), index, 0644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	router := buildTestRouter(t, staticRoot)

	// A client-side route unknown to the server still gets the dashboard.
	req := httptest.NewRequest(http.MethodGet, "/accounts/42", nil)
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard fallback returned %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(index) {
		t.Fatalf("fallback body %q, want index.html contents", rec.Body.String())
	}
}

func TestFallbackWithoutDashboardBuild(t *testing.T) {
	router := buildTestRouter(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/accounts/42", nil)
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing dashboard build returned %d, want 404", rec.Code)
	}
}

func TestSecuredGroupRequiresMiddleware(t *testing.T) {
	cfg := config.NewDefaultConfig()

	router, err := Build(Options{
		Config: cfg,
		Logger: platformtesting.SetupTestLogger(t),
		AuthMiddleware: func(c *gin.Context) {
			c.AbortWithStatus(http.StatusUnauthorized)
		},
		StaticRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	if router.Secured == nil {
		t.Fatal("expected a secured group when middleware is provided")
	}

	router.Secured.GET("/guarded", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("guarded route returned %d, want 401", rec.Code)
	}
}
