// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Auth() AuthConfig
	Legacy() LegacyConfig
	Audit() AuditConfig
	Credential() CredentialConfig

	// Auth Setters
	SetAuthLoginURL(string)
	SetAuthUsername(string)
	SetAuthPassword(string)
	SetAuthSettleWait(time.Duration)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserIgnoreTLSErrors(bool)
}

// Config holds the entire application configuration.
// Fields are exported for viper's decoder; callers go through the Interface getters.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AuthCfg       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	LegacyCfg     LegacyConfig     `mapstructure:"legacy" yaml:"legacy"`
	AuditCfg      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	CredentialCfg CredentialConfig `mapstructure:"credential" yaml:"credential"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Auth() AuthConfig             { return c.AuthCfg }
func (c *Config) Legacy() LegacyConfig         { return c.LegacyCfg }
func (c *Config) Audit() AuditConfig           { return c.AuditCfg }
func (c *Config) Credential() CredentialConfig { return c.CredentialCfg }

// --- Interface Method Implementations (Setters) ---

// Auth Setters
func (c *Config) SetAuthLoginURL(u string)          { c.AuthCfg.LoginURL = u }
func (c *Config) SetAuthUsername(u string)          { c.AuthCfg.Username = u }
func (c *Config) SetAuthPassword(p string)          { c.AuthCfg.Password = p }
func (c *Config) SetAuthSettleWait(d time.Duration) { c.AuthCfg.SettleWait = d }

// Browser Setters
func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserIgnoreTLSErrors(b bool) { c.BrowserCfg.IgnoreTLSErrors = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser that runs login handshakes.
type BrowserConfig struct {
	Headless           bool           `mapstructure:"headless" yaml:"headless"`
	DisableGPU         bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors    bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath           string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent          string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args               []string       `mapstructure:"args" yaml:"args"`
	Viewport           map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout  time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NetworkIdleTimeout time.Duration  `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	NetworkQuietPeriod time.Duration  `mapstructure:"network_quiet_period" yaml:"network_quiet_period"`
	Debug              bool           `mapstructure:"debug" yaml:"debug"`
}

// AuthConfig describes the login form and the credentials used against it.
type AuthConfig struct {
	LoginURL      string        `mapstructure:"login_url" yaml:"login_url"`
	Username      string        `mapstructure:"username" yaml:"username"`
	Password      string        `mapstructure:"password" yaml:"-"`
	UsernameField string        `mapstructure:"username_field" yaml:"username_field"`
	PasswordField string        `mapstructure:"password_field" yaml:"password_field"`
	SubmitButton  string        `mapstructure:"submit_button" yaml:"submit_button"`
	MarkerCookie  string        `mapstructure:"marker_cookie" yaml:"marker_cookie"`
	SettleWait    time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	Attempts      int           `mapstructure:"attempts" yaml:"attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// LegacyConfig tunes the plain HTTP client that receives the bridged cookies.
type LegacyConfig struct {
	AuthScheme          string        `mapstructure:"auth_scheme" yaml:"auth_scheme"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host" yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	IgnoreTLSErrors     bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2          bool          `mapstructure:"force_http2" yaml:"force_http2"`
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// AuditConfig selects where handshake attempts are recorded.
// An empty driver disables auditing.
type AuditConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"-"`
}

// CredentialConfig configures the OS keyring used to look up passwords.
type CredentialConfig struct {
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
	FileDir        string `mapstructure:"file_dir" yaml:"file_dir"`
	// FilePassphrase encrypts the file backend. Without it the file is only obfuscated.
	FilePassphrase string `mapstructure:"file_passphrase" yaml:"-"`
}

// Supported legacy client auth schemes.
const (
	AuthSchemeBasic = "basic"
	AuthSchemeNTLM  = "ntlm"
)

// Supported audit drivers.
const (
	AuditDriverNone     = ""
	AuditDriverPostgres = "postgres"
	AuditDriverSQLite   = "sqlite"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formgate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.network_idle_timeout", "10s")
	v.SetDefault("browser.network_quiet_period", "250ms")
	v.SetDefault("browser.debug", false)

	// -- Auth --
	// Empty defaults make the keys visible to AutomaticEnv during Unmarshal.
	v.SetDefault("auth.login_url", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.username_field", "UserName")
	v.SetDefault("auth.password_field", "Password")
	v.SetDefault("auth.submit_button", "submitButton")
	v.SetDefault("auth.marker_cookie", "FedAuth")
	v.SetDefault("auth.settle_wait", "1500ms")
	v.SetDefault("auth.attempts", 1)
	v.SetDefault("auth.retry_interval", "5s")

	// -- Legacy client --
	v.SetDefault("legacy.auth_scheme", AuthSchemeBasic)
	v.SetDefault("legacy.request_timeout", "30s")
	v.SetDefault("legacy.max_idle_conns", 100)
	v.SetDefault("legacy.max_idle_conns_per_host", 20)
	v.SetDefault("legacy.max_conns_per_host", 50)
	v.SetDefault("legacy.idle_conn_timeout", "30s")
	v.SetDefault("legacy.ignore_tls_errors", false)
	v.SetDefault("legacy.force_http2", true)

	// -- Audit --
	v.SetDefault("audit.driver", AuditDriverNone)

	// -- Credential --
	v.SetDefault("credential.service_name", "formgate")
	v.SetDefault("credential.file_dir", "~/.config/formgate/credentials")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("auth.password", "FORMGATE_AUTH_PASSWORD")
	_ = v.BindEnv("audit.dsn", "FORMGATE_AUDIT_DSN")
	_ = v.BindEnv("credential.file_passphrase", "FORMGATE_CREDENTIAL_FILE_PASSPHRASE")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in file system paths.
func (c *Config) expandPaths() error {
	paths := []*string{&c.LoggerCfg.LogFile, &c.CredentialCfg.FileDir, &c.BrowserCfg.ExecPath}
	if c.AuditCfg.Driver == AuditDriverSQLite {
		paths = append(paths, &c.AuditCfg.DSN)
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// The login URL and username are not required here because the CLI can supply them as flags.
func (c *Config) Validate() error {
	if err := c.AuthCfg.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if err := c.LegacyCfg.Validate(); err != nil {
		return fmt.Errorf("legacy configuration invalid: %w", err)
	}
	if err := c.AuditCfg.Validate(); err != nil {
		return fmt.Errorf("audit configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative")
	}
	return nil
}

// Validate checks the Auth configuration.
func (a *AuthConfig) Validate() error {
	if a.LoginURL != "" {
		u, err := url.Parse(a.LoginURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("login_url must be an absolute URL, got %q", a.LoginURL)
		}
	}
	if a.UsernameField == "" || a.PasswordField == "" || a.SubmitButton == "" {
		return fmt.Errorf("username_field, password_field and submit_button are required")
	}
	if a.MarkerCookie == "" {
		return fmt.Errorf("marker_cookie is required")
	}
	if a.SettleWait < 0 {
		return fmt.Errorf("settle_wait must not be negative")
	}
	if a.Attempts <= 0 {
		return fmt.Errorf("attempts must be a positive integer")
	}
	if a.RetryInterval < 0 {
		return fmt.Errorf("retry_interval must not be negative")
	}
	return nil
}

// Validate checks the legacy client configuration.
func (l *LegacyConfig) Validate() error {
	switch strings.ToLower(l.AuthScheme) {
	case AuthSchemeBasic, AuthSchemeNTLM:
	default:
		return fmt.Errorf("auth_scheme must be %q or %q, got %q", AuthSchemeBasic, AuthSchemeNTLM, l.AuthScheme)
	}
	if l.MaxIdleConnsPerHost < 0 || l.MaxConnsPerHost < 0 || l.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	return nil
}

// Validate checks the audit configuration.
func (a *AuditConfig) Validate() error {
	switch a.Driver {
	case AuditDriverNone:
		return nil
	case AuditDriverPostgres, AuditDriverSQLite:
		if a.DSN == "" {
			return fmt.Errorf("dsn is required when driver is %q (hint: check FORMGATE_AUDIT_DSN)", a.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unsupported driver %q", a.Driver)
	}
}
