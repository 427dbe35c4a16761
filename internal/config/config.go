package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Remote     RemoteConfig     `yaml:"remote" json:"remote"`
	Deployment DeploymentConfig `yaml:"deployment" json:"deployment"`
	Accounts   AccountsConfig   `yaml:"accounts" json:"accounts"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Security   SecurityConfig   `yaml:"security" json:"security"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Monitor    MonitorConfig    `yaml:"monitor" json:"monitor"`
}

// ServerConfig contains the two HTTP listeners: the operator-only admin API
// and the public account-creation API.
type ServerConfig struct {
	Admin  ListenerConfig `yaml:"admin" json:"admin"`
	Public ListenerConfig `yaml:"public" json:"public"`
}

// ListenerConfig describes one HTTP listener
type ListenerConfig struct {
	Enabled bool      `yaml:"enabled" json:"enabled"`
	Host    string    `yaml:"host" json:"host"`
	Port    int       `yaml:"port" json:"port"`
	TLS     TLSConfig `yaml:"tls" json:"tls"`
}

// Addr returns host:port for net/http
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// Remote transports
const (
	TransportOpenSSH = "openssh"
	TransportNative  = "native"
)

// RemoteConfig describes how the remote host is reached. Host may be an alias
// from ~/.ssh/config when the openssh transport is used.
type RemoteConfig struct {
	Host                 string        `yaml:"host" json:"host"`
	Port                 int           `yaml:"port" json:"port"`
	User                 string        `yaml:"user" json:"user"`
	KeyPath              string        `yaml:"key_path" json:"key_path"`
	KeyPassphrase        string        `yaml:"key_passphrase" json:"-"`
	Transport            string        `yaml:"transport" json:"transport"`
	SSHBinary            string        `yaml:"ssh_binary" json:"ssh_binary"`
	Shell                string        `yaml:"shell" json:"shell"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	CommandTimeout       time.Duration `yaml:"command_timeout" json:"command_timeout"`
	ScriptTimeout        time.Duration `yaml:"script_timeout" json:"script_timeout"`
	HealthConnectTimeout time.Duration `yaml:"health_connect_timeout" json:"health_connect_timeout"`
	HealthTimeout        time.Duration `yaml:"health_timeout" json:"health_timeout"`
}

// AccountsConfig holds the fixed profile fields handed to the account-creation
// binary and the names of the remote tools involved.
type AccountsConfig struct {
	Email            string `yaml:"email" json:"email"`
	Birthdate        string `yaml:"birthdate" json:"birthdate"`
	Race             string `yaml:"race" json:"race"`
	Homeland         string `yaml:"homeland" json:"homeland"`
	Gender           string `yaml:"gender" json:"gender"`
	MasterDir        string `yaml:"master_dir" json:"master_dir"`
	HashTool         string `yaml:"hash_tool" json:"hash_tool"`
	CreateTool       string `yaml:"create_tool" json:"create_tool"`
	PrimaryNamespace string `yaml:"primary_namespace" json:"primary_namespace"`
	LegacyNamespace  string `yaml:"legacy_namespace" json:"legacy_namespace"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	SSH       SSHConfig       `yaml:"ssh" json:"ssh"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// SSHConfig contains SSH host identity settings. TrustOnFirstUse records an
// unknown host key instead of rejecting it; this trades security for
// operability and is only acceptable for a fixed, pre-provisioned peer.
type SSHConfig struct {
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`
}

// StorageConfig contains local storage paths
type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`

	// Stderr sends console output to stderr instead of stdout
	Stderr bool `yaml:"stderr" json:"stderr"`
}

// MonitorConfig controls the scheduled roster probe
type MonitorConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Schedule      string `yaml:"schedule" json:"schedule"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// Default returns the built-in configuration matching the stock /tw404 layout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Admin:  ListenerConfig{Enabled: true, Host: "127.0.0.1", Port: 8081},
			Public: ListenerConfig{Enabled: true, Host: "0.0.0.0", Port: 9080},
		},
		Remote: RemoteConfig{
			Host:                 "solaris",
			Port:                 22,
			Transport:            TransportOpenSSH,
			SSHBinary:            "ssh",
			Shell:                "bash",
			ConnectTimeout:       5 * time.Second,
			CommandTimeout:       10 * time.Second,
			ScriptTimeout:        30 * time.Second,
			HealthConnectTimeout: 3 * time.Second,
			HealthTimeout:        5 * time.Second,
		},
		Deployment: DefaultDeployment(),
		Accounts: AccountsConfig{
			Email:            "twsrv@localhost",
			Birthdate:        "19990909",
			Race:             "1",
			Homeland:         "4",
			Gender:           "5",
			MasterDir:        "db/master",
			HashTool:         "uh",
			CreateTool:       "create_master",
			PrimaryNamespace: "jtales",
			LegacyNamespace:  "ttales",
		},
		Database: DatabaseConfig{
			Path:           "./data/tw404-manager.db",
			MaxConnections: 25,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			},
			SSH: SSHConfig{
				KnownHostsPath:  "./data/known_hosts",
				TrustOnFirstUse: true,
			},
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Monitor: MonitorConfig{
			Enabled:       true,
			Schedule:      "@every 30s",
			RetentionDays: 7,
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := Default()

	configPath := GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	// SOLARIS_HOST is the one setting every deployment has to provide
	if host := os.Getenv("SOLARIS_HOST"); host != "" {
		c.Remote.Host = host
	}

	if user := os.Getenv("SSH_USER"); user != "" {
		c.Remote.User = user
	}

	if keyPath := os.Getenv("SSH_KEY_PATH"); keyPath != "" {
		c.Remote.KeyPath = keyPath
	}

	if passphrase := os.Getenv("SSH_KEY_PASSPHRASE"); passphrase != "" {
		c.Remote.KeyPassphrase = passphrase
	}

	if transport := os.Getenv("SSH_TRANSPORT"); transport != "" {
		c.Remote.Transport = transport
	}

	if port := os.Getenv("SSH_PORT"); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SSH_PORT %q: %w", port, err)
		}
		c.Remote.Port = value
	}

	if knownHostsPath := os.Getenv("KNOWN_HOSTS_PATH"); knownHostsPath != "" {
		c.Security.SSH.KnownHostsPath = knownHostsPath
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Remote.Host) == "" {
		return fmt.Errorf("remote host must be set (SOLARIS_HOST)")
	}

	switch c.Remote.Transport {
	case TransportOpenSSH, TransportNative:
	default:
		return fmt.Errorf("unsupported remote transport: %s", c.Remote.Transport)
	}

	if c.Remote.Transport == TransportNative && strings.TrimSpace(c.Remote.User) == "" {
		return fmt.Errorf("remote user is required for the native transport")
	}

	if c.Remote.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}

	for name, total := range map[string]time.Duration{
		"command_timeout": c.Remote.CommandTimeout,
		"script_timeout":  c.Remote.ScriptTimeout,
	} {
		if total <= c.Remote.ConnectTimeout {
			return fmt.Errorf("%s (%v) must be longer than connect_timeout (%v)", name, total, c.Remote.ConnectTimeout)
		}
	}

	if c.Remote.HealthConnectTimeout <= 0 || c.Remote.HealthTimeout <= c.Remote.HealthConnectTimeout {
		return fmt.Errorf("health_timeout must be longer than health_connect_timeout")
	}

	if err := c.Deployment.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Accounts.PrimaryNamespace) == "" || strings.TrimSpace(c.Accounts.LegacyNamespace) == "" {
		return fmt.Errorf("account namespaces must be set")
	}

	for _, listener := range []ListenerConfig{c.Server.Admin, c.Server.Public} {
		if listener.Enabled && listener.TLS.Enabled {
			if listener.TLS.CertFile == "" || listener.TLS.KeyFile == "" {
				return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
			}
		}
	}

	return nil
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if strings.HasPrefix(trimmed, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, trimmed[2:])
			}
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "tw404-manager.db")
	}
	c.Database.Path = resolvePath(c.Database.Path)

	if strings.TrimSpace(c.Security.SSH.KnownHostsPath) == "" {
		c.Security.SSH.KnownHostsPath = filepath.Join(c.Storage.DataDir, "known_hosts")
	}
	c.Security.SSH.KnownHostsPath = resolvePath(c.Security.SSH.KnownHostsPath)

	if c.Remote.KeyPath != "" {
		c.Remote.KeyPath = resolvePath(c.Remote.KeyPath)
	}
}
