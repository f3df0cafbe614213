package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Ledger     LedgerConfig     `yaml:"ledger" json:"ledger"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	Sandbox    SandboxConfig    `yaml:"sandbox" json:"sandbox"`
	Security   SecurityConfig   `yaml:"security" json:"security"`
}

// ServerConfig covers the WebSocket listener.
type ServerConfig struct {
	IP   string `yaml:"ip" json:"ip"`
	Port int    `yaml:"port" json:"port"`
}

// WebConfig covers the HTTP API listener.
type WebConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Port      int    `yaml:"port" json:"port"`
	StaticDir string `yaml:"static_dir" json:"static_dir"`
	Websocket string `yaml:"websocket" json:"websocket"`
}

type LogConfig struct {
	Level string `yaml:"log_level" json:"log_level"`
	Dir   string `yaml:"log_dir" json:"log_dir"`
	File  string `yaml:"log_file" json:"log_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

type AuthConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	JWTSecret         string        `yaml:"jwt_secret" json:"-"`
	TokenTTL          time.Duration `yaml:"token_ttl" json:"token_ttl"`
	GoogleUserinfoURL string        `yaml:"google_userinfo_url" json:"google_userinfo_url"`
	Store             StoreConfig   `yaml:"store" json:"store"`
}

type StoreConfig struct {
	Type    string           `yaml:"type" json:"type"`
	Expiry  time.Duration    `yaml:"expiry" json:"expiry"`
	Cleanup time.Duration    `yaml:"cleanup" json:"cleanup"`
	Redis   RedisStoreConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	SQLite  SQLiteStore      `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	Memory  MemoryStore      `yaml:"memory,omitempty" json:"memory,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

type MemoryStore struct {
	Cleanup time.Duration `yaml:"cleanup" json:"cleanup"`
}

// GenerationConfig selects and parameterises the text-generation backend.
// Backend is "api" for the OpenAI-compatible HTTP adapter or "cli" for the
// subprocess adapter.
type GenerationConfig struct {
	Backend     string   `yaml:"backend" json:"backend"`
	BaseURL     string   `yaml:"url" json:"url"`
	ModelName   string   `yaml:"model_name" json:"model_name"`
	Temperature float64  `yaml:"temperature" json:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens"`
	CLICommand  string   `yaml:"cli_command" json:"cli_command"`
	CLIArgs     []string `yaml:"cli_args" json:"cli_args"`
	MaxRetries  int      `yaml:"max_retries" json:"max_retries"`
}

// LedgerConfig selects the quota ledger store driver.
type LedgerConfig struct {
	Driver string           `yaml:"driver" json:"driver"`
	Redis  RedisStoreConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

type MemoryConfig struct {
	RetrieveLimit int `yaml:"retrieve_limit" json:"retrieve_limit"`
}

type SandboxConfig struct {
	HealthInterval time.Duration `yaml:"health_interval" json:"health_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

type SecurityConfig struct {
	MaxPromptLength int `yaml:"max_prompt_length" json:"max_prompt_length"`
}

// NewDefaultConfig returns the configuration used when no file is present.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Web: WebConfig{
			Enabled:   true,
			Port:      8080,
			StaticDir: "./static",
			Websocket: "ws://localhost:8000",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Database: DatabaseConfig{
			Path: "./data/commanddeck.db",
		},
		Auth: AuthConfig{
			Enabled:           true,
			JWTSecret:         "command-deck-dev-secret",
			TokenTTL:          24 * time.Hour,
			GoogleUserinfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			Store: StoreConfig{
				Type:    "memory",
				Expiry:  24 * time.Hour,
				Cleanup: 10 * time.Minute,
			},
		},
		Generation: GenerationConfig{
			Backend:     "api",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			ModelName:   "gemini-2.0-flash",
			Temperature: 0.7,
			MaxTokens:   2048,
			CLICommand:  "gemini",
			MaxRetries:  3,
		},
		Ledger: LedgerConfig{
			Driver: "gorm",
		},
		Memory: MemoryConfig{
			RetrieveLimit: 3,
		},
		Sandbox: SandboxConfig{
			HealthInterval: 5 * time.Minute,
			ProbeTimeout:   5 * time.Second,
		},
		Security: SecurityConfig{
			MaxPromptLength: 10000,
		},
	}
}
