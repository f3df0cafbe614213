package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// candidatePaths are probed in order when no explicit path is given.
var candidatePaths = []string{".config.yaml", "config.yaml"}

// Loader reads the YAML configuration with .env and environment overrides.
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithPath pins the loader to one file instead of probing the defaults.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads the first configuration file found, falling back to defaults
// when none exists, then applies environment overrides.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := NewDefaultConfig()
	path := "defaults"

	paths := candidatePaths
	if l.path != "" {
		paths = []string{l.path}
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if l.path != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", p, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", p, err)
		}
		path = p
		break
	}

	applyEnvOverrides(cfg)

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

// applyEnvOverrides lets deployment environments override secrets and paths
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.Generation.ModelName = v
	}
	if v := os.Getenv("GENERATION_BACKEND"); v != "" {
		cfg.Generation.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Ledger.Redis.Addr = v
		cfg.Auth.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Ledger.Redis.Password = v
		cfg.Auth.Store.Redis.Password = v
	}
	if v := os.Getenv("WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
