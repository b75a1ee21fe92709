// Package config carga y valida la configuración de una app hellodoc.
//
// Fuentes, en orden: defaults → YAML (Load) → variables HELLODOC_* (applyEnvOverrides).
// Los .env se cargan antes con LoadEnvFiles para que las overrides los vean.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración de proyecto más las secciones de backend.
type Config struct {
	// Identidad del proyecto remoto.
	APIKey            string `yaml:"apiKey"`
	AuthDomain        string `yaml:"authDomain"`
	ProjectID         string `yaml:"projectId"`
	StorageBucket     string `yaml:"storageBucket"`
	MessagingSenderID string `yaml:"messagingSenderId"`
	AppID             string `yaml:"appId"`
	MeasurementID     string `yaml:"measurementId"` // opcional

	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"` // memory | postgres | redis
	DSN      string `yaml:"dsn"`
	Postgres struct {
		MaxConns int    `yaml:"max_conns"`
		Table    string `yaml:"table"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type AuthConfig struct {
	Driver          string        `yaml:"driver"` // local | identitytoolkit
	Endpoint        string        `yaml:"endpoint"`
	TokenEndpoint   string        `yaml:"token_endpoint"`
	SigningKey      string        `yaml:"signing_key"`
	IDTokenTTL      time.Duration `yaml:"id_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	VerifyTTL       time.Duration `yaml:"verify_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	// Si true, ResetPassword sobre un email desconocido no revela que no existe.
	EmailEnumerationProtection bool `yaml:"email_enumeration_protection"`
	PasswordPolicy             struct {
		MinLength     int  `yaml:"min_length"`
		RequireUpper  bool `yaml:"require_upper"`
		RequireLower  bool `yaml:"require_lower"`
		RequireDigit  bool `yaml:"require_digit"`
		RequireSymbol bool `yaml:"require_symbol"`
	} `yaml:"password_policy"`
	// SignInMethods habilitados: "password", "google", "github"... vacío = todos.
	SignInMethods []string `yaml:"sign_in_methods"`
}

type ProviderCredentials struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type ProvidersConfig struct {
	Google       ProviderCredentials `yaml:"google"`
	Facebook     ProviderCredentials `yaml:"facebook"`
	GitHub       ProviderCredentials `yaml:"github"`
	Twitter      ProviderCredentials `yaml:"twitter"`
	CallbackAddr string              `yaml:"callback_addr"` // loopback, ej: 127.0.0.1:8765
}

type StorageConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Region     string        `yaml:"region"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	TLS      string `yaml:"tls"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	Enabled   *bool  `yaml:"enabled"` // nil => habilitado si hay measurementId
	Namespace string `yaml:"namespace"`
}

// Load lee un YAML, aplica defaults y overrides de entorno. No valida: ver Validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.KindConfiguration, "config.Load", path, err)
	}
	return Parse(b)
}

// Parse es Load sin el archivo.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errs.E(errs.KindConfiguration, "config.Parse", "", err)
	}
	c.applyEnvOverrides()
	c.ApplyDefaults()
	return &c, nil
}

// FromEnv arma una Config sólo desde variables de entorno.
func FromEnv() *Config {
	var c Config
	c.applyEnvOverrides()
	c.ApplyDefaults()
	return &c
}

// LoadEnvFiles carga .env (no pisa variables ya definidas). Archivos inexistentes se ignoran.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errs.E(errs.KindConfiguration, "config.LoadEnvFiles", strings.Join(existing, ","), err)
	}
	return nil
}

// ApplyDefaults completa valores por defecto. Idempotente.
func (c *Config) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = "documents"
	}
	if c.Store.Postgres.MaxConns == 0 {
		c.Store.Postgres.MaxConns = 10
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "hellodoc"
	}
	if c.Auth.Driver == "" {
		c.Auth.Driver = "local"
	}
	if c.Auth.IDTokenTTL == 0 {
		c.Auth.IDTokenTTL = time.Hour
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.VerifyTTL == 0 {
		c.Auth.VerifyTTL = 72 * time.Hour
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = time.Hour
	}
	if c.Auth.PasswordPolicy.MinLength == 0 {
		c.Auth.PasswordPolicy.MinLength = 6
	}
	if c.Providers.CallbackAddr == "" {
		c.Providers.CallbackAddr = "127.0.0.1:0"
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Storage.PresignTTL == 0 {
		c.Storage.PresignTTL = 15 * time.Minute
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = "hellodoc"
	}
}

// Validate chequea los campos requeridos y los drivers. Devuelve *errs.Error de kind configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errs.Configuration("config.Validate").WithMessage("configuration is required")
	}
	var missing []string
	req := []struct{ name, v string }{
		{"apiKey", c.APIKey},
		{"authDomain", c.AuthDomain},
		{"projectId", c.ProjectID},
		{"storageBucket", c.StorageBucket},
		{"messagingSenderId", c.MessagingSenderID},
		{"appId", c.AppID},
	}
	for _, f := range req {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errs.Configuration("config.Validate", missing...)
	}

	switch c.Store.Driver {
	case "", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errs.Configuration("config.Validate", "store.dsn")
		}
	case "redis":
		if c.Store.Redis.Addr == "" && c.Store.DSN == "" {
			return errs.Configuration("config.Validate", "store.redis.addr")
		}
	default:
		return errs.Configuration("config.Validate").WithMessage(fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Auth.Driver {
	case "", "local":
	case "identitytoolkit":
		// endpoint vacío => el público de Google
	default:
		return errs.Configuration("config.Validate").WithMessage(fmt.Sprintf("unknown auth driver %q", c.Auth.Driver))
	}
	return nil
}

// TelemetryEnabled: explícito si está seteado, si no depende de measurementId.
func (c *Config) TelemetryEnabled() bool {
	if c.Telemetry.Enabled != nil {
		return *c.Telemetry.Enabled
	}
	return c.MeasurementID != ""
}

// MethodEnabled indica si el método de sign-in está habilitado.
func (a AuthConfig) MethodEnabled(method string) bool {
	if len(a.SignInMethods) == 0 {
		return true
	}
	for _, m := range a.SignInMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
