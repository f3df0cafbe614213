package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"command-deck-server-go/internal/domain/auth/store"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/errors"
	platformtesting "command-deck-server-go/internal/platform/testing"
)

func newTestManager(t *testing.T, userinfo http.HandlerFunc) *Manager {
	t.Helper()

	dsn := fmt.Sprintf("file:auth-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuthSession{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	google := NewGoogleVerifier("")
	if userinfo != nil {
		srv := httptest.NewServer(userinfo)
		t.Cleanup(srv.Close)
		google = NewGoogleVerifier(srv.URL)
	}

	mgr, err := NewManager(Options{
		DB:     db,
		Store:  store.NewMemory(store.Config{TTL: time.Hour}),
		Logger: platformtesting.SetupTestLogger(t),
		Token:  NewTokenIssuer("test-secret", time.Hour),
		Google: google,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Close()
	})
	return mgr
}

func googleUserinfo(id, email, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"email":%q,"name":%q,"picture":"https://example.com/p.png"}`, id, email, name)
	}
}

func TestRegisterLoginRoundtrip(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	user, token, err := mgr.Register(ctx, "operator", "operator@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == 0 || token == "" {
		t.Fatalf("expected persisted user and token, got %+v / %q", user, token)
	}
	if user.Password == "hunter22" {
		t.Fatalf("password stored in clear")
	}

	identity, err := mgr.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if identity.UserID != user.ID || identity.Email != "operator@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, _, err := mgr.Login(ctx, "operator", "hunter22"); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if _, _, err := mgr.Login(ctx, "operator", "wrong"); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
	if _, _, err := mgr.Login(ctx, "nobody", "hunter22"); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{name: "missing username", username: "", email: "a@example.com", password: "hunter22"},
		{name: "missing email", username: "a", email: "", password: "hunter22"},
		{name: "short password", username: "a", email: "a@example.com", password: "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := mgr.Register(ctx, tc.username, tc.email, tc.password); !errors.IsKind(err, errors.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if _, _, err := mgr.Register(ctx, "operator", "operator@example.com", "hunter22"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, _, err := mgr.Register(ctx, "operator", "other@example.com", "hunter22"); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected duplicate username rejection, got %v", err)
	}
	if _, _, err := mgr.Register(ctx, "other", "operator@example.com", "hunter22"); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	_, token, err := mgr.Register(ctx, "operator", "operator@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := mgr.Logout(ctx, token); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := mgr.Verify(ctx, token); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected revoked token to fail verification, got %v", err)
	}

	// A second logout has nothing to revoke and succeeds quietly.
	if err := mgr.Logout(ctx, token); err != nil {
		t.Fatalf("repeat Logout error: %v", err)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	mgr := newTestManager(t, nil)
	if _, err := mgr.Verify(context.Background(), "not-a-token"); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, googleUserinfo("g-123", "pilot@example.com", "Deck Pilot"))

	user, token, err := mgr.LoginWithGoogle(ctx, "good-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if user.GoogleID != "g-123" || user.Email != "pilot@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Username != "pilot" {
		t.Fatalf("expected username from email local part, got %q", user.Username)
	}
	if _, err := mgr.Verify(ctx, token); err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	// Same Google account signs into the same user.
	again, _, err := mgr.LoginWithGoogle(ctx, "good-token")
	if err != nil {
		t.Fatalf("second LoginWithGoogle error: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected the same user, got %d and %d", user.ID, again.ID)
	}
}

func TestGoogleLoginLinksExistingEmail(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, googleUserinfo("g-456", "operator@example.com", "Operator"))

	registered, _, err := mgr.Register(ctx, "operator", "operator@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	linked, _, err := mgr.LoginWithGoogle(ctx, "good-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if linked.ID != registered.ID {
		t.Fatalf("expected google sign-in to reuse the existing user")
	}
	if linked.GoogleID != "g-456" {
		t.Fatalf("expected google id to be linked, got %q", linked.GoogleID)
	}
}

func TestGoogleLoginRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, googleUserinfo("g-123", "pilot@example.com", "Deck Pilot"))

	if _, _, err := mgr.LoginWithGoogle(ctx, "bad-token"); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected unauthorized for rejected userinfo call, got %v", err)
	}
	if _, _, err := mgr.LoginWithGoogle(ctx, "  "); !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected validation error for blank token, got %v", err)
	}
}

func TestPasswordLoginRejectedForGoogleOnlyUser(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, googleUserinfo("g-123", "pilot@example.com", "Deck Pilot"))

	user, _, err := mgr.LoginWithGoogle(ctx, "good-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if _, _, err := mgr.Login(ctx, user.Username, ""); !errors.IsKind(err, errors.KindUnauthorized) {
		t.Fatalf("expected unauthorized for passwordless user, got %v", err)
	}
}

func TestMe(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	user, _, err := mgr.Register(ctx, "operator", "operator@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := mgr.Me(ctx, user.ID)
	if err != nil {
		t.Fatalf("Me error: %v", err)
	}
	if got.Username != "operator" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if _, err := mgr.Me(ctx, 9999); !stderrors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
