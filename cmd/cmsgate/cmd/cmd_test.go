package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/cmsgate/pkg/config"
	"github.com/ideamans/cmsgate/pkg/dispatch"
)

func TestPrintRoutes(t *testing.T) {
	var buf bytes.Buffer
	printRoutes(&buf, dispatch.DefaultTable())
	out := buf.String()

	for _, want := range []string{
		"admin-root", "regex ^/admin/?$", "/admin/index.html",
		"admin-static", "prefix /admin /theme /api/admin",
		"api", "api-proxy",
		"app",
		"GET /api/ext/ping", "GET /api/ext/runtime",
	} {
		assert.Contains(t, out, want)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []config.SummaryItem{{Key: "upstream.access_key", Value: "****ey"}})
	assert.Contains(t, buf.String(), "upstream.access_key")
	assert.Contains(t, buf.String(), "****ey")
}

func TestCheckConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmsgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
upstream:
  url: https://cms.example.com
  access_key: verysecret
`), 0o644))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"check-config", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Configuration validation passed")
	assert.Contains(t, buf.String(), "https://cms.example.com")
	assert.NotContains(t, buf.String(), "verysecret")
}
