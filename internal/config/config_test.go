package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"INTERSIGHT_BASE_URL", "INTERSIGHT_API_KEY_ID", "INTERSIGHT_PRIVATE_KEY_FILE",
		"INTERSIGHT_INSECURE", "INTERSIGHT_CA_CERT_FILE", "INTERSIGHT_PAGE_SIZE",
		"INTERSIGHT_RATE_LIMIT", "INTERSIGHT_MAX_RETRIES", "INTERSIGHT_TIMEOUT_SECONDS",
		"WORKBENCH_LOG_LEVEL", "WORKBENCH_LOG_FORMAT", "WORKBENCH_LISTEN", "WORKBENCH_FILE",
	} {
		k := k
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	assert := assert.New(t)

	c, err := Load("", "")
	require.NoError(t, err)
	assert.Equal("https://intersight.com", c.Intersight.BaseURL)
	assert.Equal("./SecretKey.txt", c.Intersight.PrivateKeyFile)
	assert.Equal(100, c.Client.PageSize)
	assert.Equal(60*time.Second, c.Client.Timeout)
	assert.Equal(":8080", c.Listen)
	assert.NoError(c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	assert := assert.New(t)

	path := writeFile(t, "config.yaml", `
intersight:
  base_url: https://appliance.example.com
  key_id: from-file
client:
  timeout: 15s
  page_size: 50
log:
  level: debug
`)
	envFile := writeFile(t, ".env", "INTERSIGHT_API_KEY_ID=from-dotenv\nWORKBENCH_LISTEN=:9090\n")
	t.Setenv("INTERSIGHT_PAGE_SIZE", "25")

	c, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal("https://appliance.example.com", c.Intersight.BaseURL)
	assert.Equal("from-dotenv", c.Intersight.KeyID)
	assert.Equal(":9090", c.Listen)
	assert.Equal(25, c.Client.PageSize)
	assert.Equal(15*time.Second, c.Client.Timeout)
	assert.Equal("debug", c.Log.Level)
	assert.Equal(4, c.Client.MaxRetries, "unset keys keep their defaults")
}

func TestLoad_ProcessEnvBeatsDotenv(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTERSIGHT_API_KEY_ID", "from-env")
	envFile := writeFile(t, ".env", "INTERSIGHT_API_KEY_ID=from-dotenv\n")

	c, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Intersight.KeyID)
}

func TestLoad_MissingDotenvIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "intersight: [unclosed")
	_, err = Load(bad, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"page size", func(c *Config) { c.Client.PageSize = 0 }},
		{"rate limit", func(c *Config) { c.Client.RateLimit = 0 }},
		{"retries", func(c *Config) { c.Client.MaxRetries = -1 }},
		{"timeout", func(c *Config) { c.Client.Timeout = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConnection(t *testing.T) {
	c := Default()
	_, err := c.Connection()
	assert.Error(t, err, "missing key ID")

	c.Intersight.KeyID = "abc/def/123"
	c.Intersight.BaseURL = "https://intersight.com/"
	conn, err := c.Connection()
	require.NoError(t, err)
	assert.Equal(t, "https://intersight.com", conn.BaseURL)

	c.Intersight.CACertFile = writeFile(t, "ca.pem", "-----BEGIN CERTIFICATE-----\n")
	conn, err = c.Connection()
	require.NoError(t, err)
	assert.Contains(t, conn.CACert, "BEGIN CERTIFICATE")
}
