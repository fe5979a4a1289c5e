package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveHost(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		dotEnv     string
		configured string
		wantHost   string
		wantSource HostSource
	}{
		{
			name:       "environment wins",
			env:        "http://env:1",
			dotEnv:     "HOST=http://dotenv:2\n",
			configured: "http://config:3",
			wantHost:   "http://env:1",
			wantSource: HostFromEnv,
		},
		{
			name:       "dotenv when env unset",
			dotEnv:     "OTHER=x\nHOST=http://dotenv:2\n",
			configured: "http://config:3",
			wantHost:   "http://dotenv:2",
			wantSource: HostFromDotEnv,
		},
		{
			name:       "config when dotenv lacks HOST",
			dotEnv:     "OTHER=x\n",
			configured: "http://config:3",
			wantHost:   "http://config:3",
			wantSource: HostFromConfig,
		},
		{
			name:       "default when nothing set",
			wantHost:   DefaultHost,
			wantSource: HostFromDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(HostEnvKey, tt.env)

			dotEnvPath := filepath.Join(t.TempDir(), "missing.env")
			if tt.dotEnv != "" {
				dotEnvPath = writeDotEnv(t, tt.dotEnv)
			}

			host, source, err := ResolveHost(dotEnvPath, tt.configured)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolveHost_EmptyDotEnvPath(t *testing.T) {
	t.Setenv(HostEnvKey, "")

	host, source, err := ResolveHost("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, host)
	assert.Equal(t, HostFromDefault, source)
}
