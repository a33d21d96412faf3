package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"wxstats/internal/config"
	"wxstats/internal/observability"
)

func NewServer(cfg config.Config, handler http.Handler, logger *slog.Logger, metrics *observability.Metrics) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(handler, logger, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
