package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intcode.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("/var/lib/intcode")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/var/lib/intcode/images.db", cfg.Store.Path)
	assert.Equal(t, "/var/lib/intcode/runs", cfg.Cache.Path)
	assert.True(t, cfg.RPC.Enabled)
	assert.False(t, cfg.GRPC.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, `
[log]
level = "debug"

[cache]
in-memory = true
path = ""

[rpc]
addr = "0.0.0.0:9000"
read-timeout = "5s"
max-sessions = 4

[grpc]
enabled = true

[vm]
step-limit = 1000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Cache.InMemory)
	assert.Equal(t, "0.0.0.0:9000", cfg.RPC.Addr)
	assert.Equal(t, 5*time.Second, cfg.RPC.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.RPC.WriteTimeout)
	assert.Equal(t, 4, cfg.RPC.MaxSessions)
	assert.True(t, cfg.GRPC.Enabled)
	assert.Equal(t, "127.0.0.1:8971", cfg.GRPC.Addr)
	assert.Equal(t, uint64(1000), cfg.VM.StepLimit)
	assert.Equal(t, filepath.Join("data", "images.db"), cfg.Store.Path)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"unknown key", "[rpc]\nport = 1\n", ErrUnknownKey},
		{"bad level", "[log]\nlevel = \"loud\"\n", ErrConfigInvalid},
		{"empty store", "[store]\npath = \"\"\n", ErrConfigInvalid},
		{"cache without path", "[cache]\npath = \"\"\n", ErrConfigInvalid},
		{"grpc without addr", "[grpc]\nenabled = true\naddr = \"\"\n", ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Load(writeFile(t, "[rpc\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateDisabledSections(t *testing.T) {
	cfg := Default("data")
	cfg.RPC.Enabled = false
	cfg.RPC.Addr = ""
	cfg.Cache.Enabled = false
	cfg.Cache.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestWrite(t *testing.T) {
	cfg := Default("data")
	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))

	out := buf.String()
	for _, section := range []string{"[log]", "[store]", "[cache]", "[rpc]", "[grpc]", "[vm]"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, `addr = "127.0.0.1:8970"`)
}
