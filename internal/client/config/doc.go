// Package config loads runtime configuration for the pdfxcel CLI.
//
// Sources, in increasing precedence:
//
//  1. Built-in defaults ((*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Flags
//
//	-s string   base URL of the conversion service (e.g. http://host:8000/api)
//	-d string   path to the local sqlite database
//	-t int      HTTP request timeout (seconds)
//	-i int      online status check interval (seconds)
//	-export     result sink: "local" or "s3"
//	-out        output directory for the local sink
//	-bucket     S3 bucket for the s3 sink
//	-v          debug logging
//
// JSON durations use timex.Duration, so both "30s" and integer
// nanoseconds are accepted:
//
//	{
//	  "server_url": "http://localhost:8000/api",
//	  "request_timeout": "30s",
//	  "poll_interval": "5s",
//	  "export": {"target": "s3", "s3": {"bucket": "statements"}}
//	}
package config
