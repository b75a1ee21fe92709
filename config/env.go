package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "HELLODOC_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func setStr(dst *string, key string) {
	if v, ok := getEnvStr(key); ok {
		*dst = v
	}
}

// applyEnvOverrides: pisa el YAML con HELLODOC_*.
func (c *Config) applyEnvOverrides() {
	// PROJECT
	setStr(&c.APIKey, "API_KEY")
	setStr(&c.AuthDomain, "AUTH_DOMAIN")
	setStr(&c.ProjectID, "PROJECT_ID")
	setStr(&c.StorageBucket, "STORAGE_BUCKET")
	setStr(&c.MessagingSenderID, "MESSAGING_SENDER_ID")
	setStr(&c.AppID, "APP_ID")
	setStr(&c.MeasurementID, "MEASUREMENT_ID")

	// STORE
	setStr(&c.Store.Driver, "STORE_DRIVER")
	setStr(&c.Store.DSN, "STORE_DSN")
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Store.Postgres.MaxConns = v
	}
	setStr(&c.Store.Postgres.Table, "POSTGRES_TABLE")
	if v, ok := getEnvBool("POSTGRES_MIGRATE"); ok {
		c.Store.Postgres.Migrate = v
	}
	setStr(&c.Store.Redis.Addr, "REDIS_ADDR")
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Store.Redis.DB = v
	}
	setStr(&c.Store.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Store.Redis.Prefix, "REDIS_PREFIX")

	// AUTH
	setStr(&c.Auth.Driver, "AUTH_DRIVER")
	setStr(&c.Auth.Endpoint, "AUTH_ENDPOINT")
	setStr(&c.Auth.TokenEndpoint, "AUTH_TOKEN_ENDPOINT")
	setStr(&c.Auth.SigningKey, "AUTH_SIGNING_KEY")
	if v, ok := getEnvDur("AUTH_ID_TOKEN_TTL"); ok {
		c.Auth.IDTokenTTL = v
	}
	if v, ok := getEnvDur("AUTH_REFRESH_TOKEN_TTL"); ok {
		c.Auth.RefreshTokenTTL = v
	}
	if v, ok := getEnvDur("AUTH_VERIFY_TTL"); ok {
		c.Auth.VerifyTTL = v
	}
	if v, ok := getEnvDur("AUTH_RESET_TTL"); ok {
		c.Auth.ResetTTL = v
	}
	if v, ok := getEnvBool("AUTH_EMAIL_ENUMERATION_PROTECTION"); ok {
		c.Auth.EmailEnumerationProtection = v
	}
	if v, ok := getEnvInt("AUTH_PASSWORD_MIN_LENGTH"); ok {
		c.Auth.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvCSV("AUTH_SIGN_IN_METHODS"); ok {
		c.Auth.SignInMethods = v
	}

	// PROVIDERS
	setStr(&c.Providers.Google.ClientID, "GOOGLE_CLIENT_ID")
	setStr(&c.Providers.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setStr(&c.Providers.Facebook.ClientID, "FACEBOOK_CLIENT_ID")
	setStr(&c.Providers.Facebook.ClientSecret, "FACEBOOK_CLIENT_SECRET")
	setStr(&c.Providers.GitHub.ClientID, "GITHUB_CLIENT_ID")
	setStr(&c.Providers.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	setStr(&c.Providers.Twitter.ClientID, "TWITTER_CLIENT_ID")
	setStr(&c.Providers.Twitter.ClientSecret, "TWITTER_CLIENT_SECRET")
	setStr(&c.Providers.CallbackAddr, "OAUTH_CALLBACK_ADDR")

	// STORAGE (S3 compatible)
	setStr(&c.Storage.Endpoint, "S3_ENDPOINT")
	setStr(&c.Storage.Region, "S3_REGION")
	setStr(&c.Storage.AccessKey, "S3_ACCESS_KEY")
	setStr(&c.Storage.SecretKey, "S3_SECRET_KEY")
	if v, ok := getEnvDur("S3_PRESIGN_TTL"); ok {
		c.Storage.PresignTTL = v
	}

	// SMTP
	setStr(&c.SMTP.Host, "SMTP_HOST")
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	setStr(&c.SMTP.Username, "SMTP_USERNAME")
	setStr(&c.SMTP.Password, "SMTP_PASSWORD")
	setStr(&c.SMTP.From, "SMTP_FROM")
	setStr(&c.SMTP.TLS, "SMTP_TLS")

	// LOG / TELEMETRY
	if v, ok := getEnvStr("LOG_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	}
	setStr(&c.Log.Level, "LOG_LEVEL")
	if v, ok := getEnvBool("TELEMETRY_ENABLED"); ok {
		c.Telemetry.Enabled = &v
	}
	setStr(&c.Telemetry.Namespace, "TELEMETRY_NAMESPACE")
}
