package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWriteAndLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{
		Version:              configVersion,
		SiteServer:           "cm01.corp.example",
		SiteCode:             "PS1",
		Username:             `CORP\admin`,
		SkipCertificateCheck: true,
		NamingPrefix:         "CM - ",
	}
	require.NoError(t, cfg.WriteConfig(file))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, uint(3), loaded.retryAttempts())

	loaded.RetryAttempts = 5
	assert.Equal(t, uint(5), loaded.retryAttempts())
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid yaml", "site_server: [", "unable to parse config file"},
		{"url instead of host", "site_server: https://cm01/AdminService\n", "must be a host name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(file, []byte(tt.content), 0600))
			_, err := LoadConfig(file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigWithoutServer(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("version: 0.1.0\nretry_attempts: 7\nnaming_prefix: 'CM - '\n"), 0600))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, uint(7), cfg.RetryAttempts)
	assert.Equal(t, "CM - ", cfg.NamingPrefix)
	assert.ErrorIs(t, cfg.requireSiteServer(), ErrNotConfigured)
	assert.ErrorIs(t, cfg.requireSiteServer(), apperrors.ErrNotConnected)

	cfg.SiteServer = "cm01"
	assert.NoError(t, cfg.requireSiteServer())
}

func TestWriteConfigRequiresPath(t *testing.T) {
	assert.Error(t, (&Config{}).WriteConfig(""))
}

func TestMorphServer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cm01", "cm01"},
		{" cm01.corp.example ", "cm01.corp.example"},
		{"https://cm01/AdminService/wmi", "cm01"},
		{"http://cm01:8443", "cm01:8443"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MorphServer(tt.in), tt.in)
	}
}
