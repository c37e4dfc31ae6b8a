package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "teamdesk.yml"

// Config models teamdesk.yml.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
		Mongo  struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
	} `yaml:"store"`
	Auth  Auth  `yaml:"auth"`
	Mail  Mail  `yaml:"mail"`
	Audit Audit `yaml:"audit"`
	Log   struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type Auth struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	VerificationTTL   time.Duration `yaml:"verification_ttl"`
	PasswordMinLength int           `yaml:"password_min_length"`
	MaxFailedLogins   int           `yaml:"max_failed_logins"`
	Lockout           time.Duration `yaml:"lockout"`
	BootstrapAdmins   []string      `yaml:"bootstrap_admins"`
}

type Mail struct {
	From      string `yaml:"from"`
	VerifyURL string `yaml:"verify_url"`
}

type Audit struct {
	ListLimit int       `yaml:"list_limit"`
	Webhooks  []Webhook `yaml:"webhooks"`
	NATS      struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
}

type Webhook struct {
	URL     string        `yaml:"url"`
	Actions []string      `yaml:"actions"`
	Enabled bool          `yaml:"enabled"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with td config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the default config when the file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("config.store.mongo.uri is required for the mongo driver")
		}
		if c.Store.Mongo.Database == "" {
			return fmt.Errorf("config.store.mongo.database is required for the mongo driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be one of sqlite, memory, mongo (got %q)", c.Store.Driver)
	}
	if c.Auth.PasswordMinLength < 6 {
		return fmt.Errorf("config.auth.password_min_length must be at least 6")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Auth.VerificationTTL <= 0 {
		return fmt.Errorf("config.auth.verification_ttl must be positive")
	}
	if c.Auth.MaxFailedLogins < 0 {
		return fmt.Errorf("config.auth.max_failed_logins must not be negative")
	}
	if c.Auth.MaxFailedLogins > 0 && c.Auth.Lockout <= 0 {
		return fmt.Errorf("config.auth.lockout must be positive when max_failed_logins is set")
	}
	for i, email := range c.Auth.BootstrapAdmins {
		if !strings.Contains(email, "@") {
			return fmt.Errorf("config.auth.bootstrap_admins[%d] is not an email address", i)
		}
	}
	if c.Audit.ListLimit <= 0 {
		return fmt.Errorf("config.audit.list_limit must be positive")
	}
	for i, wh := range c.Audit.Webhooks {
		if wh.Enabled && wh.URL == "" {
			return fmt.Errorf("config.audit.webhooks[%d].url is required when enabled", i)
		}
	}
	if c.Audit.NATS.URL != "" && c.Audit.NATS.Subject == "" {
		return fmt.Errorf("config.audit.nats.subject is required when nats.url is set")
	}
	return nil
}

// IsBootstrapAdmin reports whether email is listed in auth.bootstrap_admins.
func (c *Config) IsBootstrapAdmin(email string) bool {
	for _, e := range c.Auth.BootstrapAdmins {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  driver: sqlite
  mongo:
    uri: ""
    database: teamdesk

auth:
  # required by td serve; TEAMDESK_JWT_SECRET overrides it
  jwt_secret: ""
  token_ttl: 24h
  verification_ttl: 48h
  password_min_length: 6
  max_failed_logins: 5
  lockout: 15m
  bootstrap_admins: []

mail:
  from: "no-reply@teamdesk.local"
  verify_url: "http://localhost:8080/v0/auth/verify"

audit:
  list_limit: 100
  webhooks: []
  nats:
    url: ""
    subject: teamdesk.activity

log:
  level: info
  format: console
`
