// Package auth owns user accounts and login sessions: password and Google
// sign-in, HS256 token issue/verify, and revocation through a pluggable
// session store.
package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"command-deck-server-go/internal/domain/auth/store"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/errors"
	"command-deck-server-go/internal/platform/logging"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
	minPasswordLength      = 6
)

// ErrUserNotFound reports a lookup for a user id with no row behind it.
var ErrUserNotFound = stderrors.New("user not found")

// Identity is the authenticated caller attached to requests and sessions.
type Identity struct {
	UserID uint
	Email  string
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	DB              *gorm.DB
	Store           store.Store
	Logger          *logging.Logger
	Token           *TokenIssuer
	Google          *GoogleVerifier
	CleanupInterval time.Duration
}

// Manager coordinates user records, token issue/verify and session lifecycle.
type Manager struct {
	db     *gorm.DB
	store  store.Store
	logger *logging.Logger
	token  *TokenIssuer
	google *GoogleVerifier

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.DB == nil {
		return nil, stderrors.New("auth manager requires a database handle")
	}
	if opts.Store == nil {
		return nil, stderrors.New("auth manager requires a session store")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("auth manager requires a logger")
	}
	if opts.Token == nil {
		return nil, stderrors.New("auth manager requires a token issuer")
	}
	if opts.Google == nil {
		opts.Google = NewGoogleVerifier("")
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.WarnTag("Auth", "cleanup interval too small, adjusting to minimum", map[string]interface{}{
			"minimum": minCleanupInterval.String(),
		})
		cleanupInterval = minCleanupInterval
	}

	mgr := &Manager{
		db:              opts.DB,
		store:           opts.Store,
		logger:          opts.Logger,
		token:           opts.Token,
		google:          opts.Google,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}

	go mgr.runCleanup()
	return mgr, nil
}

func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.store.CleanupExpired(context.Background()); err != nil {
				m.logger.WarnTag("Auth", "session store cleanup failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-m.cleanupStop:
			return
		}
	}
}

// Register creates a password-backed user and signs them in.
func (m *Manager) Register(ctx context.Context, username, email, password string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, "", errors.New(errors.KindValidation, "register", "Username is required")
	}
	if email == "" {
		return nil, "", errors.New(errors.KindValidation, "register", "Email is required")
	}
	if len(password) < minPasswordLength {
		return nil, "", errors.New(errors.KindValidation, "register", "Password must be at least 6 characters")
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, "", errors.Wrap(errors.KindStorage, "register", "user lookup failed", err)
	}
	if count > 0 {
		return nil, "", errors.New(errors.KindValidation, "register", "Username already taken")
	}
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, "", errors.Wrap(errors.KindStorage, "register", "user lookup failed", err)
	}
	if count > 0 {
		return nil, "", errors.New(errors.KindValidation, "register", "Email already registered")
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashPassword(password),
	}
	if err := m.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, "", errors.Wrap(errors.KindStorage, "register", "user creation failed", err)
	}
	m.logger.InfoTag("Auth", "user registered", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})

	token, err := m.issueSession(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies a username/password pair and signs the user in.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", errors.New(errors.KindUnauthorized, "login", "Invalid username or password")
	}
	if err != nil {
		return nil, "", errors.Wrap(errors.KindStorage, "login", "user lookup failed", err)
	}
	// OAuth-created users have no password and must sign in with Google.
	if user.Password == "" || !verifyPassword(password, user.Password) {
		return nil, "", errors.New(errors.KindUnauthorized, "login", "Invalid username or password")
	}

	token, err := m.issueSession(ctx, &user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// LoginWithGoogle validates a Google access token, upserts the matching user
// and signs them in.
func (m *Manager) LoginWithGoogle(ctx context.Context, accessToken string) (*models.User, string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, "", errors.New(errors.KindValidation, "google_login", "Access token is required")
	}

	profile, err := m.google.Fetch(ctx, accessToken)
	if err != nil {
		return nil, "", errors.Wrap(errors.KindUnauthorized, "google_login", "Failed to get user info", err)
	}

	user, err := m.getOrCreateUser(ctx, profile)
	if err != nil {
		return nil, "", err
	}

	token, err := m.issueSession(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Verify checks the token signature, expiry and session liveness.
func (m *Manager) Verify(ctx context.Context, tokenString string) (Identity, error) {
	claims, err := m.token.Verify(tokenString)
	if err != nil || claims.TokenID == "" {
		return Identity{}, errors.New(errors.KindUnauthorized, "verify", "Invalid or expired token")
	}
	session, err := m.store.Get(ctx, claims.TokenID)
	if err != nil {
		// Revoked, expired or never issued by this deployment.
		return Identity{}, errors.New(errors.KindUnauthorized, "verify", "Invalid or expired token")
	}
	return Identity{UserID: session.UserID, Email: session.Email}, nil
}

// Logout revokes the session behind the token. Tokens that no longer verify
// have nothing left to revoke and are not an error.
func (m *Manager) Logout(ctx context.Context, tokenString string) error {
	claims, err := m.token.Verify(tokenString)
	if err != nil || claims.TokenID == "" {
		return nil
	}
	if err := m.store.Remove(ctx, claims.TokenID); err != nil {
		return errors.Wrap(errors.KindStorage, "logout", "session removal failed", err)
	}
	m.logger.DebugTag("Auth", "session revoked", map[string]interface{}{
		"user_id": claims.UserID,
	})
	return nil
}

// Me loads the full user row for an authenticated id.
func (m *Manager) Me(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := m.db.WithContext(ctx).First(&user, userID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "me", "user lookup failed", err)
	}
	return &user, nil
}

// SessionStats exposes session store counters for the status endpoint.
func (m *Manager) SessionStats(ctx context.Context) (map[string]any, error) {
	return m.store.Stats(ctx)
}

// Close stops the cleanup loop and releases the session store.
func (m *Manager) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.cleanupStop)
	})
	return m.store.Close(context.Background())
}

func (m *Manager) issueSession(ctx context.Context, user *models.User) (string, error) {
	token, tokenID, err := m.token.Issue(user.ID, user.Email)
	if err != nil {
		return "", errors.Wrap(errors.KindPlatform, "issue_session", "token signing failed", err)
	}
	expiresAt := time.Now().Add(m.token.TTL())
	session := store.Session{
		TokenID:   tokenID,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: &expiresAt,
	}
	if err := m.store.Save(ctx, session); err != nil {
		return "", errors.Wrap(errors.KindStorage, "issue_session", "session persistence failed", err)
	}
	return token, nil
}

func (m *Manager) getOrCreateUser(ctx context.Context, profile GoogleProfile) (*models.User, error) {
	var user models.User

	if profile.ID != "" {
		err := m.db.WithContext(ctx).Where("google_id = ?", profile.ID).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(errors.KindStorage, "google_login", "user lookup failed", err)
		}
	}

	err := m.db.WithContext(ctx).Where("email = ?", profile.Email).First(&user).Error
	if err == nil {
		if user.GoogleID == "" && profile.ID != "" {
			user.GoogleID = profile.ID
			if err := m.db.WithContext(ctx).Model(&user).Update("google_id", profile.ID).Error; err != nil {
				return nil, errors.Wrap(errors.KindStorage, "google_login", "user link failed", err)
			}
		}
		return &user, nil
	}
	if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(errors.KindStorage, "google_login", "user lookup failed", err)
	}

	user = models.User{
		Username: m.uniqueUsername(ctx, profile.Email),
		Email:    profile.Email,
		GoogleID: profile.ID,
	}
	if err := m.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "google_login", "user creation failed", err)
	}
	m.logger.InfoTag("Auth", "user created from google profile", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return &user, nil
}

// uniqueUsername derives a username from the email local part, suffixing it
// when the name is already taken.
func (m *Manager) uniqueUsername(ctx context.Context, email string) string {
	base := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	if base == "" {
		base = "user"
	}
	var count int64
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", base).Count(&count).Error; err == nil && count == 0 {
		return base
	}
	return base + "-" + uuid.NewString()[:8]
}
