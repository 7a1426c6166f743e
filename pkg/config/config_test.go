package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  default:
    - localdata
  localdata:
    path: testdata
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 2680, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Display.Silent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestEnvVarSubstitution(t *testing.T) {
	t.Setenv("NBLETS_TEST_HOST", "10.0.0.5")

	path := writeConfig(t, `
server:
  host: ${NBLETS_TEST_HOST}
  port: ${NBLETS_TEST_PORT:-9090}
providers:
  default:
    - localdata
  localdata:
    path: testdata
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestEnvVarSubstitutionSkipsComments(t *testing.T) {
	content := "# host: ${UNSET_VAR_COMMENT}\nserver:\n  host: localhost\n"

	substituted, err := substituteEnvVars(content)
	require.NoError(t, err)

	assert.Contains(t, substituted, "${UNSET_VAR_COMMENT}")
}

func TestValidateProviderRequiresSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "clickhouse without addresses",
			content: `
providers:
  default:
    - clickhouse
`,
			errMsg: "providers.clickhouse.addresses",
		},
		{
			name: "tilookup without base url",
			content: `
providers:
  default:
    - tilookup
`,
			errMsg: "providers.tilookup.base_url",
		},
		{
			name: "unknown provider name",
			content: `
providers:
  default:
    - cosmosdb
`,
			errMsg: `unknown provider "cosmosdb"`,
		},
		{
			name: "redis cache without address",
			content: `
providers:
  default:
    - localdata
cache:
  backend: redis
`,
			errMsg: "cache.redis.address",
		},
		{
			name: "auth enabled without secret",
			content: `
providers:
  default:
    - localdata
server:
  auth:
    enabled: true
`,
			errMsg: "secret_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTIAPIKeyFromEnv(t *testing.T) {
	t.Setenv("NBLETS_TEST_TI_KEY", "secret-key")

	path := writeConfig(t, `
providers:
  default:
    - localdata
    - tilookup
  localdata:
    path: testdata
  tilookup:
    base_url: https://otx.example.com
    api_key_env: NBLETS_TEST_TI_KEY
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Providers.TILookup.APIKey)
}
