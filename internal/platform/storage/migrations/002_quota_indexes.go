package migrations

import (
	"gorm.io/gorm"
)

// Migration002QuotaIndexes adds the indexes the rotation hot path relies on.
type Migration002QuotaIndexes struct{}

func (m *Migration002QuotaIndexes) Version() string {
	return "002_quota_indexes"
}

func (m *Migration002QuotaIndexes) Description() string {
	return "Add lookup indexes for quota selection and history queries"
}

func (m *Migration002QuotaIndexes) Up(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_ai_accounts_user_id ON ai_accounts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_accounts_user_active ON ai_accounts(user_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_sandboxes_user_id ON sandboxes(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_id ON interactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_plans_user_id ON agent_plans(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_google_id ON users(google_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_event_type ON domain_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_session_id ON domain_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_created_at ON domain_events(created_at)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration002QuotaIndexes) Down(db *gorm.DB) error {
	stmts := []string{
		`DROP INDEX IF EXISTS idx_ai_accounts_user_id`,
		`DROP INDEX IF EXISTS idx_ai_accounts_user_active`,
		`DROP INDEX IF EXISTS idx_sandboxes_user_id`,
		`DROP INDEX IF EXISTS idx_interactions_user_id`,
		`DROP INDEX IF EXISTS idx_interactions_created_at`,
		`DROP INDEX IF EXISTS idx_agent_plans_user_id`,
		`DROP INDEX IF EXISTS idx_users_google_id`,
		`DROP INDEX IF EXISTS idx_domain_events_event_type`,
		`DROP INDEX IF EXISTS idx_domain_events_session_id`,
		`DROP INDEX IF EXISTS idx_domain_events_created_at`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
