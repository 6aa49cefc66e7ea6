package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJson(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	dir := t.TempDir()

	good := writeFile(t, dir, "cfg.json", `{
		"server_url": "https://convert.example/api",
		"request_timeout": "45s",
		"channel": {"max_reconnect_attempts": 3, "reconnect_base_delay": 500000000},
		"poll_ceiling": 10,
		"export": {"target": "s3", "s3": {"bucket": "statements", "use_path_style": true}}
	}`)

	t.Run("overlays set fields", func(t *testing.T) {
		os.Args = []string{"bin", "-config", good}
		cfg := &Config{}
		cfg.LoadDefaults()

		parseJson(cfg)

		assert.Equal(t, "https://convert.example/api", cfg.ServerURL)
		assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
		assert.Equal(t, 3, cfg.MaxReconnectAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
		assert.Equal(t, 10, cfg.PollCeiling)
		assert.Equal(t, ExportS3, cfg.ExportTarget)
		assert.Equal(t, "statements", cfg.S3.Bucket)
		assert.True(t, cfg.S3.UsePathStyle)

		assert.Equal(t, 5*time.Second, cfg.PollInterval, "unset field keeps default")
		assert.Equal(t, "us-east-1", cfg.S3.Region)
	})

	t.Run("no config flag", func(t *testing.T) {
		os.Args = []string{"bin"}
		cfg := &Config{ServerURL: "keep"}
		parseJson(cfg)
		assert.Equal(t, "keep", cfg.ServerURL)
	})

	t.Run("invalid json panics", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.json", `{ nope`)
		os.Args = []string{"bin", "-c", bad}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"bin", "-c", filepath.Join(dir, "absent.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
