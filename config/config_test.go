package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
apiKey: key-123
authDomain: demo.example.com
projectId: demo
storageBucket: demo-bucket
messagingSenderId: "4242"
appId: "1:4242:web:abc"
store:
  driver: postgres
  dsn: postgres://u:p@localhost/demo
  postgres:
    migrate: true
auth:
  id_token_ttl: 30m
  sign_in_methods: [password, github]
providers:
  github:
    client_id: gh-id
    client_secret: gh-secret
`

func TestParse_DefaultsAndFields(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "demo", c.ProjectID)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.True(t, c.Store.Postgres.Migrate)
	assert.Equal(t, "documents", c.Store.Postgres.Table)
	assert.Equal(t, 30*time.Minute, c.Auth.IDTokenTTL)
	assert.Equal(t, time.Hour, c.Auth.ResetTTL)
	assert.Equal(t, "local", c.Auth.Driver)
	assert.Equal(t, "gh-id", c.Providers.GitHub.ClientID)
	assert.True(t, c.Auth.MethodEnabled("GitHub"))
	assert.False(t, c.Auth.MethodEnabled("google"))
	assert.False(t, c.TelemetryEnabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HELLODOC_PROJECT_ID", "from-env")
	t.Setenv("HELLODOC_STORE_DRIVER", "memory")
	t.Setenv("HELLODOC_MEASUREMENT_ID", "G-XYZ")
	t.Setenv("HELLODOC_AUTH_SIGN_IN_METHODS", "password, google ,")

	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.ProjectID)
	assert.Equal(t, "memory", c.Store.Driver)
	assert.Equal(t, []string{"password", "google"}, c.Auth.SignInMethods)
	assert.True(t, c.TelemetryEnabled())
}

func TestValidate_MissingFields(t *testing.T) {
	c := &Config{APIKey: "k", ProjectID: "p"}
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
	for _, f := range []string{"authDomain", "storageBucket", "messagingSenderId", "appId"} {
		assert.Contains(t, err.Error(), f)
	}
	assert.NotContains(t, err.Error(), "apiKey")

	var nilCfg *Config
	assert.True(t, errs.IsKind(nilCfg.Validate(), errs.KindConfiguration))
}

func TestValidate_Drivers(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	c.Store.DSN = ""
	assert.True(t, errs.IsKind(c.Validate(), errs.KindConfiguration))

	c.Store.Driver = "cassandra"
	assert.Contains(t, c.Validate().Error(), "cassandra")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("HELLODOC_APP_ID=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("HELLODOC_APP_ID") })

	require.NoError(t, LoadEnvFiles(p, filepath.Join(dir, "missing.env")))
	c := FromEnv()
	assert.Equal(t, "from-dotenv", c.AppID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}
