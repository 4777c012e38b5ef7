package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mailorder/internal/config"
	"mailorder/internal/connectors"
	"mailorder/internal/listener"
	"mailorder/internal/logging"
	"mailorder/internal/pipeline"
	"mailorder/internal/remoteparser"
	"mailorder/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger := logging.Setup(cfg)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	conn, err := connectors.New(cfg, cfg.MailListenerProvider)
	must(err)

	var parser pipeline.OrderTextParser = pipeline.LocalParser{}
	if cfg.ParserMode == config.ParserRemote {
		parser = remoteparser.NewClient(cfg)
	}
	processor := pipeline.NewProcessingService(db, cfg, parser, logger)

	svc := listener.NewService(db, cfg, conn, processor, logger)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
