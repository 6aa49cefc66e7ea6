package config

import "time"

// Export targets.
const (
	ExportLocal = "local"
	ExportS3    = "s3"
)

// Config holds runtime settings for the pdfxcel CLI.
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration
	DatabasePath   string

	OnlineCheckInterval time.Duration

	HandshakeTimeout     time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration

	PollInterval time.Duration
	PollCeiling  int

	FreeDailyUploads int
	MaxFileSize      int64

	ExportTarget string
	ExportDir    string
	S3           S3Config

	Verbose bool
}

// S3Config selects the bucket used when ExportTarget is "s3". Static keys
// are optional; when empty the default AWS credential chain is used.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// LoadDefaults populates c with the built-in defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8000/api"
	c.RequestTimeout = 30 * time.Second
	c.DatabasePath = "pdfxcel.db"
	c.OnlineCheckInterval = 3 * time.Second

	c.HandshakeTimeout = 10 * time.Second
	c.ReconnectBaseDelay = 2 * time.Second
	c.MaxReconnectAttempts = 5
	c.PingInterval = 30 * time.Second

	c.PollInterval = 5 * time.Second
	c.PollCeiling = 60

	c.FreeDailyUploads = 3
	c.MaxFileSize = 10 * 1024 * 1024

	c.ExportTarget = ExportLocal
	c.ExportDir = "."
	c.S3 = S3Config{Region: "us-east-1", Prefix: "exports/"}
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// command-line flags. Later sources win. Invalid input panics.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
