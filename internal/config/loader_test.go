package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	req.NoError(err)
	req.Equal(path, resolved)
	req.Equal(Default(), cfg)

	// The default file was materialized for the next start.
	_, err = os.Stat(path)
	req.NoError(err)
}

func TestLoadReadsConfigFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	req.NoError(os.WriteFile(path, []byte("addr: \":9090\"\nlog_level: debug\njwt_ttl: 1h\n"), 0o600))

	cfg, _, err := Load(nil, path)
	req.NoError(err)
	req.Equal(":9090", cfg.Addr)
	req.Equal("debug", cfg.LogLevel)
	req.Equal(time.Hour, cfg.JWTTTL)
	// Unset keys keep their defaults.
	req.Equal(Default().DatabasePath, cfg.DatabasePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	req.NoError(os.WriteFile(path, []byte("addr: \":9090\"\n"), 0o600))

	t.Setenv("TALKROOM_ADDR", ":7070")
	t.Setenv("TALKROOM_JWT_SECRET", "env-secret")

	cfg, _, err := Load(nil, path)
	req.NoError(err)
	req.Equal(":7070", cfg.Addr)
	req.Equal("env-secret", cfg.JWTSecret)
}
