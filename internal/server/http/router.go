package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ekisa-team/whisper-api/internal/service"
)

// RouterOptions configures the HTTP router.
type RouterOptions struct {
	Logger      *slog.Logger
	Info        Info
	CORSOrigins []string
}

// NewRouter builds the HTTP handler serving every endpoint.
func NewRouter(stt *service.STT, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info := opts.Info
	if info.Name == "" {
		info = DefaultInfo
	}

	router := chi.NewMux()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	config := huma.DefaultConfig(info.Name, info.Version)
	config.Info.Description = info.Description
	// Responses carry no $schema link so bodies match the documented shapes.
	config.CreateHooks = nil
	config.Transformers = nil

	api := humachi.New(router, config)

	NewSystemHandler(api, stt, info)
	NewSTTHandler(api, stt)

	return router
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote", r.RemoteAddr,
					"request_id", chimiddleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
