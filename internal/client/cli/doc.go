// Package cli provides the interactive pdfxcel command-line client.
//
// It wires configuration, local storage, the conversion service client and
// an interactive REPL that stands in for the mobile screens: pick a PDF,
// upload it, watch the conversion progress, then preview or save the
// spreadsheet. A background watcher pings the service and reports when the
// client goes online or offline.
//
// Key features:
//   - Upload with live progress (push channel, polling fallback)
//   - Daily quota, ad-unlocked AI conversion and PRO plan switching
//   - Server-side history: list, info, delete, redownload, stats
//   - Preview and export of results (local directory or S3)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
