package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"social-export/internal/infra/logging"
	"social-export/internal/usecase"
)

type ServerConfig struct {
	CronSecret     string
	BatchSize      int
	RequestTimeout time.Duration
}

// Server exposes the export use case over HTTP.
type Server struct {
	uc   usecase.ExportUseCase
	auth *Authenticator
	cfg  ServerConfig
	log  *zerolog.Logger
}

func NewServer(uc usecase.ExportUseCase, auth *Authenticator, cfg ServerConfig, logger *zerolog.Logger) *Server {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = usecase.DefaultBatchSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{uc: uc, auth: auth, cfg: cfg, log: logging.Component(logger, "http")}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(CronSecret(s.cfg.CronSecret)).Post("/internal/tasks/process-exports", s.processExports)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser(s.auth))

		r.Route("/exports", func(r chi.Router) {
			r.Post("/", s.enqueueExport)
			r.Get("/", s.listExports)
			r.Get("/{id}", s.getExport)
		})
		r.Get("/files/*", s.downloadArtifact)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin())
			r.Post("/exports/{id}/retry", s.retryExport)
			r.Get("/users/{userId}/exports", s.listUserExports)
		})
	})

	return Chain(r,
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.cfg.RequestTimeout),
	)
}
