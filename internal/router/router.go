package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shaibs3/LinkWatch/internal/telemetry"
)

// Handler is anything that can register its routes on the router.
type Handler interface {
	RegisterRoutes(router *mux.Router, logger *zap.Logger)
}

// Router wires handlers, rate limiting and telemetry into one HTTP surface.
type Router struct {
	mux     *mux.Router
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRouter(limiter *rate.Limiter, tel *telemetry.Telemetry, logger *zap.Logger, handlers []Handler) *Router {
	m := mux.NewRouter()

	m.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	if tel != nil {
		m.Handle("/metrics", tel.MetricsHandler()).Methods("GET")
	}

	for _, h := range handlers {
		h.RegisterRoutes(m, logger)
	}

	return &Router{
		mux:     m,
		limiter: limiter,
		logger:  logger.Named("router"),
	}
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.limiter != nil && !r.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	start := time.Now()
	r.mux.ServeHTTP(w, req)
	r.logger.Debug("request served",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
	)
}

// CreateServer builds the HTTP server for the given address.
func (r *Router) CreateServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
