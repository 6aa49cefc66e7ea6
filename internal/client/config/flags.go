package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/flagx"
)

var knownFlags = []string{"-s", "-d", "-t", "-i", "-export", "-out", "-bucket", "-v"}

// parseFlags overlays cfg with the flags it recognises; everything else in
// os.Args is ignored.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "conversion service base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.ExportTarget, "export", cfg.ExportTarget, "result sink: local or s3")
	fs.StringVar(&cfg.ExportDir, "out", cfg.ExportDir, "output directory for saved spreadsheets")
	fs.StringVar(&cfg.S3.Bucket, "bucket", cfg.S3.Bucket, "S3 bucket for the s3 sink")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
}
