package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://localhost:8000/api", c.ServerURL)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 2*time.Second, c.ReconnectBaseDelay)
	assert.Equal(t, 5, c.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, c.PingInterval)
	assert.Equal(t, 5*time.Second, c.PollInterval)
	assert.Equal(t, 60, c.PollCeiling)
	assert.Equal(t, 3, c.FreeDailyUploads)
	assert.Equal(t, int64(10*1024*1024), c.MaxFileSize)
	assert.Equal(t, ExportLocal, c.ExportTarget)
}

func TestLoadConfig_DefaultsWithoutArgs(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = []string{"pdfxcel"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

	cfg := LoadConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:8000/api", cfg.ServerURL)
	assert.Equal(t, "pdfxcel.db", cfg.DatabasePath)
}
