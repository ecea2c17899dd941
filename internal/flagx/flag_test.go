package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "-config"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "flag with equals",
			args:         []string{"-config=alt.toml", "-a", "localhost"},
			allowedFlags: []string{"-c", "-config"},
			want:         []string{"-config=alt.toml"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept",
			args:         []string{"-c"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-m", "-3"},
			allowedFlags: []string{"-m"},
			want:         []string{"-m"},
		},
		{
			name:         "several allowed flags keep their order",
			args:         []string{"-a", ":50051", "-store", "sqlite", "-x", "y", "-d", "file.db"},
			allowedFlags: []string{"-a", "-store", "-d"},
			want:         []string{"-a", ":50051", "-store", "sqlite", "-d", "file.db"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, "/etc/staff.json", ConfigFile([]string{"-c", "/etc/staff.json"}))
	assert.Equal(t, "/etc/staff.toml", ConfigFile([]string{"-a", ":1", "-config", "/etc/staff.toml"}))
	assert.Equal(t, "/b.json", ConfigFile([]string{"-c", "/a.json", "-config=/b.json"}))
	assert.Empty(t, ConfigFile([]string{"-x", "1"}))
}

func TestFileFormat(t *testing.T) {
	assert.Equal(t, FormatTOML, FileFormat("server.toml"))
	assert.Equal(t, FormatTOML, FileFormat("/etc/SERVER.TOML"))
	assert.Equal(t, FormatJSON, FileFormat("server.json"))
	assert.Equal(t, FormatJSON, FileFormat("server"))
}
