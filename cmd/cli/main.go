package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/pdfxcel/internal/buildinfo"
	"github.com/dmitrijs2005/pdfxcel/internal/client/cli"
	"github.com/dmitrijs2005/pdfxcel/internal/client/config"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	logger := logging.NewText(os.Stderr, level)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}
	defer func() { _ = app.Close() }()

	app.Run(ctx)

}
