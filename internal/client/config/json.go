package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/flagx"
	"github.com/dmitrijs2005/pdfxcel/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Zero values leave the
// corresponding Config field untouched.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`

	Channel struct {
		HandshakeTimeout     timex.Duration `json:"handshake_timeout"`
		ReconnectBaseDelay   timex.Duration `json:"reconnect_base_delay"`
		MaxReconnectAttempts int            `json:"max_reconnect_attempts"`
		PingInterval         timex.Duration `json:"ping_interval"`
	} `json:"channel"`

	PollInterval timex.Duration `json:"poll_interval"`
	PollCeiling  int            `json:"poll_ceiling"`

	FreeDailyUploads int   `json:"free_daily_uploads"`
	MaxFileSize      int64 `json:"max_file_size"`

	Export struct {
		Target string `json:"target"`
		Dir    string `json:"dir"`
		S3     struct {
			Bucket          string `json:"bucket"`
			Region          string `json:"region"`
			Endpoint        string `json:"endpoint"`
			UsePathStyle    bool   `json:"use_path_style"`
			AccessKeyID     string `json:"access_key_id"`
			SecretAccessKey string `json:"secret_access_key"`
			Prefix          string `json:"prefix"`
		} `json:"s3"`
	} `json:"export"`

	Verbose bool `json:"verbose"`
}

func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, jc.ServerURL)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)

	setDuration(&cfg.HandshakeTimeout, jc.Channel.HandshakeTimeout)
	setDuration(&cfg.ReconnectBaseDelay, jc.Channel.ReconnectBaseDelay)
	setInt(&cfg.MaxReconnectAttempts, jc.Channel.MaxReconnectAttempts)
	setDuration(&cfg.PingInterval, jc.Channel.PingInterval)

	setDuration(&cfg.PollInterval, jc.PollInterval)
	setInt(&cfg.PollCeiling, jc.PollCeiling)

	setInt(&cfg.FreeDailyUploads, jc.FreeDailyUploads)
	if jc.MaxFileSize > 0 {
		cfg.MaxFileSize = jc.MaxFileSize
	}

	setString(&cfg.ExportTarget, jc.Export.Target)
	setString(&cfg.ExportDir, jc.Export.Dir)
	s3 := jc.Export.S3
	setString(&cfg.S3.Bucket, s3.Bucket)
	setString(&cfg.S3.Region, s3.Region)
	setString(&cfg.S3.Endpoint, s3.Endpoint)
	setString(&cfg.S3.AccessKeyID, s3.AccessKeyID)
	setString(&cfg.S3.SecretAccessKey, s3.SecretAccessKey)
	setString(&cfg.S3.Prefix, s3.Prefix)
	cfg.S3.UsePathStyle = cfg.S3.UsePathStyle || s3.UsePathStyle

	cfg.Verbose = cfg.Verbose || jc.Verbose
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
