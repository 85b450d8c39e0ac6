package lading

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lading configuration.
type Config struct {
	Listen string       `yaml:"listen"`
	DBPath string       `yaml:"db_path"`
	Origin OriginConfig `yaml:"origin"`
	Probe  ProbeConfig  `yaml:"probe"`
	Scan   ScanConfig   `yaml:"scan"`
	Rescan RescanConfig `yaml:"rescan"`
	Admin  AdminConfig  `yaml:"admin"`
	MCP    MCPConfig    `yaml:"mcp"`
	Audit  AuditConfig  `yaml:"audit"`
}

// OriginConfig identifies the delivery origin probed and scanned.
type OriginConfig struct {
	// Host is the origin base URL, e.g. "https://main--site--org.hlx.live".
	Host string `yaml:"host"`
}

// ProbeConfig controls resource probing.
type ProbeConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ScanConfig controls page markup fetching.
type ScanConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// RescanConfig controls the background freshness loop.
type RescanConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Freshness     time.Duration `yaml:"freshness"`
	BatchSize     int           `yaml:"batch_size"`
}

// AdminConfig guards mutating API routes. An empty hash disables auth.
type AdminConfig struct {
	// PasswordHash is a bcrypt hash; generate one with -hash-password.
	PasswordHash string `yaml:"password_hash"`
}

// MCPConfig exposes the tool surface over QUIC next to the HTTP API.
// An empty QUICAddr disables the listener. Without a cert pair the
// listener runs on an ephemeral self-signed certificate.
type MCPConfig struct {
	QUICAddr string `yaml:"quic_addr"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
}

// AuditConfig controls the audit trail for mutating operations.
type AuditConfig struct {
	// RetentionDays prunes entries older than this at startup. 0 keeps
	// everything.
	RetentionDays int `yaml:"retention_days"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8087"
	}
	if c.DBPath == "" {
		c.DBPath = "lading.db"
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 10 * time.Second
	}
	if c.Probe.UserAgent == "" {
		c.Probe.UserAgent = "lading-probe/1.0"
	}
	if c.Probe.RetryBackoff <= 0 {
		c.Probe.RetryBackoff = 500 * time.Millisecond
	}
	if c.Scan.Timeout <= 0 {
		c.Scan.Timeout = 30 * time.Second
	}
	if c.Scan.MaxBytes <= 0 {
		c.Scan.MaxBytes = 10 * 1024 * 1024
	}
	if c.Scan.UserAgent == "" {
		c.Scan.UserAgent = "lading-scan/1.0"
	}
	if c.Rescan.CheckInterval <= 0 {
		c.Rescan.CheckInterval = 5 * time.Minute
	}
	if c.Rescan.Freshness <= 0 {
		c.Rescan.Freshness = 1 * time.Hour
	}
	if c.Rescan.BatchSize <= 0 {
		c.Rescan.BatchSize = 20
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
