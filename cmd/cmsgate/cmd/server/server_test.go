package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/cmsgate/pkg/config"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

func TestRun_InvalidConfig(t *testing.T) {
	err := Run(context.Background(), Config{
		Load:   config.Options{Getenv: func(string) string { return "" }},
		Logger: logging.NewTestLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "url")
}

func TestRun_RequiredFileMissing(t *testing.T) {
	err := Run(context.Background(), Config{
		Load: config.Options{
			Path:     filepath.Join(t.TempDir(), "none.yaml"),
			Required: true,
			Getenv:   func(string) string { return "" },
		},
		Logger: logging.NewTestLogger(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfigFileNotFound))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_StopsWithContext(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("ok"), 0o644))

	path := filepath.Join(t.TempDir(), "cmsgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
upstream:
  url: http://127.0.0.1:1
  access_key: S123
app:
  dist_dir: `+dist+`
`), 0o644))

	port := 18555
	logger := logging.NewTestLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := Run(ctx, Config{
		Load:   config.Options{Path: path, Required: true, Flags: config.Overrides{Port: &port}, Getenv: func(string) string { return "" }},
		Logger: logger,
	})
	assert.NoError(t, err)
	assert.True(t, logger.Contains("Starting cmsgate"))
	assert.True(t, logger.Contains("Server stopped"))
}
