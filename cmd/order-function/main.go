package main

import (
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"mailorder/internal/config"
	"mailorder/internal/httpapi"
	"mailorder/internal/logging"
	"mailorder/internal/pipeline"
	"mailorder/internal/remoteparser"
	"mailorder/internal/storage"
)

var (
	handler *httpapi.Handler
	once    sync.Once
	initErr error
)

func init() {
	// Entry point names configured on the function deployment.
	functions.HTTP("ProcessEmail", withHandler(func(h *httpapi.Handler) http.HandlerFunc { return h.ProcessEmail }))
	functions.HTTP("ParseOrderText", withHandler(func(h *httpapi.Handler) http.HandlerFunc { return h.Parse }))
}

// main serves the registered functions locally on $PORT.
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework stopped", "error", err)
		os.Exit(1)
	}
}

func withHandler(pick func(*httpapi.Handler) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			handler, initErr = newHandler()
		})
		if initErr != nil {
			slog.Error("Function initialization failed", "error", initErr)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		pick(handler)(w, r)
	}
}

// newHandler opens the store once per instance; it stays open for the
// lifetime of the process.
func newHandler() (*httpapi.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var parser pipeline.OrderTextParser = pipeline.LocalParser{}
	if cfg.ParserMode == config.ParserRemote {
		parser = remoteparser.NewClient(cfg)
	}
	return httpapi.NewHandler(pipeline.NewProcessingService(db, cfg, parser, logger), logger), nil
}
