package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, 2*time.Minute, c.LoginTimeout)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	file := writeFile(t, `{"server_endpoint_addr":"staff.example:50051","request_timeout":"3s"}`)

	tests := []struct {
		name string
		args []string
		want Config
	}{
		{
			name: "defaults",
			args: nil,
			want: Config{ServerEndpointAddr: "127.0.0.1:50051", RequestTimeout: 10 * time.Second, LoginTimeout: 2 * time.Minute},
		},
		{
			name: "flags",
			args: []string{"-a", "10.0.0.5:50051", "-t", "5s", "-l", "30s"},
			want: Config{ServerEndpointAddr: "10.0.0.5:50051", RequestTimeout: 5 * time.Second, LoginTimeout: 30 * time.Second},
		},
		{
			name: "file keeps unset keys",
			args: []string{"-c", file},
			want: Config{ServerEndpointAddr: "staff.example:50051", RequestTimeout: 3 * time.Second, LoginTimeout: 2 * time.Minute},
		},
		{
			name: "flags override file",
			args: []string{"-c", file, "-t", "1s"},
			want: Config{ServerEndpointAddr: "staff.example:50051", RequestTimeout: time.Second, LoginTimeout: 2 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(tt.args)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, *cfg); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig([]string{"-t", "abc"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorContains(t, err, "read config")

	_, err = LoadConfig([]string{"-c", writeFile(t, `{"request_timeout": true}`)})
	assert.ErrorContains(t, err, "parse config")
}
