package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/ws/ws"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{EnvPrefix: "WSTEST_DEFAULTS_"})
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, ws.DefaultConfig(), cfg.Client)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "ws.json", `{
		"log_level": "debug",
		"log_format": "development",
		"headers": {"X-Api-Key": "secret"},
		"client": {
			"timeout": "5s",
			"max_connections": 4,
			"follow_redirects": false,
			"rate_limit": 2.5
		}
	}`)

	cfg, err := Load(LoadOptions{FileName: path, EnvPrefix: "WSTEST_JSON_"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "development", cfg.LogFormat)
	assert.Equal(t, map[string]string{"X-Api-Key": "secret"}, cfg.Headers)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 4, cfg.Client.MaxConnections)
	assert.False(t, cfg.Client.FollowRedirects)
	assert.Equal(t, 2.5, cfg.Client.RateLimit)
	// untouched keys keep their defaults
	assert.Equal(t, ws.DefaultConfig().IdleTimeout, cfg.Client.IdleTimeout)
}

func TestLoad_DotenvFile(t *testing.T) {
	path := writeFile(t, "ws.env", "log_level=warn\nclient.user_agent=ws-env/1.0\nWSTEST_DOTENV_CLIENT__MAX_REDIRECTS=3\n")

	cfg, err := Load(LoadOptions{FileName: path, EnvPrefix: "WSTEST_DOTENV_"})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "ws-env/1.0", cfg.Client.UserAgent)
	assert.Equal(t, 3, cfg.Client.MaxRedirects)
}

func TestLoad_UnsupportedFile(t *testing.T) {
	path := writeFile(t, "ws.toml", "log_level = 'debug'")
	_, err := Load(LoadOptions{FileName: path})
	assert.ErrorContains(t, err, "unsupported config file type")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{FileName: filepath.Join(t.TempDir(), "absent.json")})
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	path := writeFile(t, "ws.json", `{"log_level": "debug", "client": {"max_connections": 4}}`)

	t.Setenv("WSTEST_ENV_LOG_LEVEL", "error")
	t.Setenv("WSTEST_ENV_CLIENT__MAX_CONNECTIONS", "8")
	t.Setenv("WSTEST_ENV_CLIENT__IDLE_TIMEOUT", "1m")

	cfg, err := Load(LoadOptions{FileName: path, EnvPrefix: "WSTEST_ENV_"})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Client.MaxConnections)
	assert.Equal(t, time.Minute, cfg.Client.IdleTimeout)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("WSTEST_FLAGS_CLIENT__TIMEOUT", "7s")
	t.Setenv("WSTEST_FLAGS_CLIENT__MAX_CONNECTIONS", "8")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Duration("timeout", 30*time.Second, "")
	fs.Int("max-connections", 20, "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--timeout", "2s", "--log-level", "debug"}))

	cfg, err := Load(LoadOptions{
		Flags:     fs,
		FlagMap:   map[string]string{"timeout": "client.timeout", "max-connections": "client.max_connections"},
		EnvPrefix: "WSTEST_FLAGS_",
	})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	// unset flags do not override the environment
	assert.Equal(t, 8, cfg.Client.MaxConnections)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "ws.json", `{"log_format": "xml", "client": {"max_connections": 0}}`)

	_, err := Load(LoadOptions{FileName: path, EnvPrefix: "WSTEST_INVALID_"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
	assert.Contains(t, err.Error(), "client.max_connections")
}

func TestFlagProvider(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("name", "", "")
	fs.Bool("verbose", false, "")
	fs.Float64("rate", 0, "")
	fs.String("log-format", "production", "")
	fs.Int("unused", 3, "")
	require.NoError(t, fs.Parse([]string{"--name", "x", "--verbose", "--rate", "1.5", "--log-format", "development"}))

	mp, err := flagProvider(fs, map[string]string{"rate": "client.rate_limit"}).Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":       "x",
		"verbose":    true,
		"log_format": "development",
		"client":     map[string]interface{}{"rate_limit": 1.5},
	}, mp)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))

	cfg.Client.Timeout = -time.Second
	cfg.Client.MaxRedirects = -1
	cfg.Client.RateLimit = -2
	cfg.Headers = map[string]string{"": "x"}

	var paths []string
	for _, e := range Validate(&cfg) {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"client.timeout", "client.max_redirects", "client.rate_limit", "headers"}, paths)
	assert.Equal(t, "client.timeout: must not be negative", ValidationError{Path: "client.timeout", Message: "must not be negative"}.Error())
}
