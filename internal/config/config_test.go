package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unistore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
default_profile: local
profiles:
  local:
    scheme: fs
    options:
      root: /tmp/unistore
  prod:
    scheme: s3
    options:
      bucket: my-bucket
      region: us-east-1
    retry:
      max_times: 5
      min_delay: 200ms
    concurrency: 16
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.DefaultProfile)
	require.Equal(t, "debug", cfg.Logging.Level)

	p, err := cfg.Profile("")
	require.NoError(t, err)
	require.Equal(t, "fs", p.Scheme)
	require.Equal(t, "/tmp/unistore", p.Options["root"])

	p, err = cfg.Profile("prod")
	require.NoError(t, err)
	require.Equal(t, 5, p.Retry.MaxTimes)
	require.Equal(t, 200*time.Millisecond, p.Retry.MinDelay.Std())
	require.Equal(t, 16, p.Concurrency)

	_, err = cfg.Profile("nope")
	require.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.DefaultProfile)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, `
profiles:
  broken:
    options:
      root: /x
`))
	require.ErrorContains(t, err, "scheme is required")

	_, err = Load(writeConfig(t, `
default_profile: ghost
profiles:
  ok:
    scheme: memory
`))
	require.ErrorContains(t, err, `default_profile "ghost"`)
}
