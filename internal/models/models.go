package models

import (
	"time"

	"gorm.io/datatypes"
)

// User owns accounts, sandboxes and interaction history.
type User struct {
	ID        uint      `gorm:"primaryKey"                             json:"id"`
	Username  string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex"          json:"email"`
	Password  string    `                                              json:"-"` // never sent to clients
	GoogleID  string    `gorm:"type:varchar(255);index"                json:"-"` // set for OAuth-created users
	CreatedAt time.Time `                                              json:"createdAt"`
	UpdatedAt time.Time `                                              json:"updatedAt"`
}

// AuthSession is the server-side record for one issued login token. Removing
// the row revokes the token ahead of its JWT expiry.
type AuthSession struct {
	TokenID   string     `gorm:"primaryKey;type:varchar(64)" json:"token_id"`
	UserID    uint       `gorm:"index;not null"              json:"user_id"`
	Email     string     `gorm:"type:varchar(255)"           json:"email"`
	IP        string     `gorm:"type:varchar(64)"            json:"ip,omitempty"`
	CreatedAt time.Time  `                                   json:"created_at"`
	ExpiresAt *time.Time `gorm:"index"                       json:"expires_at,omitempty"`
}

// Account is one generation credential with its own daily quota window.
// Exactly one of APIKey/AccessToken must be non-empty for the account to be
// usable; rotation never deletes rows, it only flips counters.
type Account struct {
	ID          uint      `gorm:"primaryKey"        json:"id"`
	UserID      uint      `gorm:"index;not null"    json:"-"`
	Name        string    `gorm:"not null"          json:"name"`
	Provider    string    `gorm:"default:'gemini_api_key'" json:"provider"` // gemini_api_key/openai/oauth
	APIKey      string    `gorm:"type:text"         json:"-"`
	AccessToken string    `gorm:"type:text"         json:"-"`
	DailyLimit  int       `gorm:"default:1000"      json:"daily_limit"`
	DailyUsed   int       `gorm:"default:0"         json:"daily_used"`
	LastReset   time.Time `                         json:"last_reset"` // date precision, calendar-day window
	IsActive    bool      `gorm:"default:true"      json:"is_active"`
	CreatedAt   time.Time `                         json:"created_at"`
	UpdatedAt   time.Time `                         json:"updated_at"`
}

// TableName maps Account onto the ai_accounts table the migrations create
// and index.
func (Account) TableName() string {
	return "ai_accounts"
}

// Remaining reports the quota still available today. Callers must apply the
// day rollover before trusting this value.
func (a *Account) Remaining() int {
	r := a.DailyLimit - a.DailyUsed
	if r < 0 {
		return 0
	}
	return r
}

// Secret returns the usable credential material, preferring the API key.
func (a *Account) Secret() string {
	if a.APIKey != "" {
		return a.APIKey
	}
	return a.AccessToken
}

// Usable reports whether the account carries any secret material at all.
func (a *Account) Usable() bool {
	return a.APIKey != "" || a.AccessToken != ""
}

// Sandbox is a user-attached VM or container endpoint the dashboard can
// drive; status is maintained by the health checker.
type Sandbox struct {
	ID            uint           `gorm:"primaryKey"     json:"id"`
	UserID        uint           `gorm:"index;not null" json:"-"`
	Name          string         `gorm:"not null"       json:"name"`
	Type          string         `gorm:"default:'docker'" json:"type"` // docker/daytona/custom
	ConnectionURL string         `gorm:"not null"       json:"connection_url"`
	VNCURL        string         `                      json:"vnc_url,omitempty"`
	Status        string         `gorm:"default:'disconnected'" json:"status"` // connected/disconnected/error
	Specs         datatypes.JSON `gorm:"type:json"      json:"specs,omitempty"`
	LastHeartbeat *time.Time     `                      json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time      `                      json:"created_at"`
}

// Interaction is one persisted prompt/response pair. Document keeps the
// combined text the retrieval scorer matches against.
type Interaction struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID    uint      `gorm:"index;not null"              json:"-"`
	Prompt    string    `gorm:"type:text"                   json:"prompt"`
	Response  string    `gorm:"type:text"                   json:"response"`
	Document  string    `gorm:"type:text"                   json:"-"`
	CreatedAt time.Time `                                   json:"created_at"`
}

// AgentPlan is a stored planning result: the goal and its ordered steps.
type AgentPlan struct {
	ID        uint           `gorm:"primaryKey"     json:"id"`
	UserID    uint           `gorm:"index;not null" json:"-"`
	Goal      string         `gorm:"type:text"      json:"goal"`
	Steps     datatypes.JSON `gorm:"type:json"      json:"steps"`
	CreatedAt time.Time      `                      json:"created_at"`
}

// DomainEvent is the audit-trail row for published bus events worth keeping
// (quota consumption, exhaustion, sandbox transitions).
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"     json:"id"`
	EventType string         `gorm:"index;not null" json:"event_type"`
	SessionID string         `gorm:"index"          json:"session_id"`
	UserID    string         `gorm:"index"          json:"user_id"`
	Data      datatypes.JSON `gorm:"not null"       json:"data"`
	CreatedAt time.Time      `gorm:"index"          json:"created_at"`
}
