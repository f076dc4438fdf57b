package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)

	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal("drop", cfg.Backpressure)
	req.Equal(10*time.Second, cfg.JoinRateWindow)
	req.Len(cfg.ICEServers, 2)
	req.Equal("ws://localhost:8080/api/ws/signal", cfg.Client.ServerURL)
}

func TestLoadFile_OverridesFromYAMLAndEnv(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9090
ping_period: 20s
ice_servers:
  - stun:example.org:3478
client:
  display_name: alice
`
	req.NoError(os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("MESH_DATABASE_PATH", "/tmp/other.db")

	cfg, err := LoadFile(path)
	req.NoError(err)

	req.Equal("debug", cfg.Mode)
	req.Equal(9090, cfg.Port)
	req.Equal(20*time.Second, cfg.PingPeriod)
	req.Equal([]string{"stun:example.org:3478"}, cfg.ICEServers)
	req.Equal("alice", cfg.Client.DisplayName)
	req.Equal("/tmp/other.db", cfg.DatabasePath)
}
