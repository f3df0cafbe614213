package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the core gateway tables.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create users, auth_sessions, ai_accounts, sandboxes, interactions and agent_plans"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	// Raw SQL keeps the canonical schema explicit instead of trusting
	// AutoMigrate output.

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) UNIQUE,
			password VARCHAR(255),
			google_id VARCHAR(255),
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS auth_sessions (
			token_id VARCHAR(64) PRIMARY KEY,
			user_id INTEGER NOT NULL,
			email VARCHAR(255),
			ip VARCHAR(64),
			created_at DATETIME,
			expires_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name VARCHAR(255) NOT NULL,
			provider VARCHAR(64) DEFAULT 'gemini_api_key',
			api_key TEXT,
			access_token TEXT,
			daily_limit INTEGER DEFAULT 1000,
			daily_used INTEGER DEFAULT 0,
			last_reset DATETIME,
			is_active BOOLEAN DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sandboxes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(32) DEFAULT 'docker',
			connection_url TEXT NOT NULL,
			vnc_url TEXT,
			status VARCHAR(32) DEFAULT 'disconnected',
			specs JSON,
			last_heartbeat DATETIME,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id VARCHAR(64) PRIMARY KEY,
			user_id INTEGER NOT NULL,
			prompt TEXT,
			response TEXT,
			document TEXT,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			goal TEXT,
			steps JSON,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS domain_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type VARCHAR(255) NOT NULL,
			session_id VARCHAR(255),
			user_id VARCHAR(255),
			data JSON NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	for _, table := range []string{"domain_events", "agent_plans", "interactions", "sandboxes", "ai_accounts", "auth_sessions", "users"} {
		if err := db.Exec(`DROP TABLE IF EXISTS ` + table).Error; err != nil {
			return err
		}
	}
	return nil
}
