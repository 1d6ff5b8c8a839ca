// Package dashboard exposes the supervisor's state as a read-only JSON
// API (§6 DASHBOARD): health, current settings/stats, and tracked orders.
// It never mutates state; every write-side command goes through the
// operator command surface (mode.Controller / intake.Intake) instead.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkov/sharewatch/internal/mode"
	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Config configures the dashboard's HTTP listener.
type Config struct {
	Port      int
	AuthToken string
}

// Server is the JSON read surface over Store and the ModeController.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.Store
	mode      *mode.Controller
	logger    *logrus.Logger
	port      int
	authToken string
}

// NewServer builds a Server and wires its routes.
func NewServer(cfg Config, store storage.Store, modeController *mode.Controller, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		mode:      modeController,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(15 * time.Second))
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", s.handleHealth)

	if s.authToken != "" {
		s.router.Route("/api", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/status", s.handleStatus)
			r.Get("/orders", s.handleOrders)
			r.Get("/stats", s.handleStats)
		})
	} else {
		s.router.Get("/api/status", s.handleStatus)
		s.router.Get("/api/orders", s.handleOrders)
		s.router.Get("/api/stats", s.handleStats)
	}
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := s.redactTokenFromURL(r.URL)
		logEntry := s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"url":       loggedURL.String(),
			"remote_ip": r.RemoteAddr,
		})
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		logEntry.WithFields(logrus.Fields{
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("http request")
	})
}

func (s *Server) redactTokenFromURL(original *url.URL) *url.URL {
	logged := &url.URL{
		Scheme:   original.Scheme,
		Host:     original.Host,
		Path:     original.Path,
		RawQuery: original.RawQuery,
		Fragment: original.Fragment,
	}
	if original.RawQuery != "" {
		values := original.Query()
		for _, k := range []string{"token", "auth_token"} {
			if values.Has(k) {
				values.Set(k, "[REDACTED]")
			}
		}
		logged.RawQuery = values.Encode()
	}
	return logged
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

// Start blocks serving HTTP until the listener stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infof("starting dashboard server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		s.logger.WithError(err).Error("failed to read settings")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{
		"is_active":  settings.IsActive,
		"mode":       settings.Mode,
		"pause_until": settings.PauseUntil,
		"active_now": s.mode.IsActive(),
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListPending()
	if err != nil {
		s.logger.WithError(err).Error("failed to list pending orders")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*models.TrackedOrder{}
	}
	s.writeJSON(w, orders)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		s.logger.WithError(err).Error("failed to read settings")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{
		"total_orders_placed": settings.TotalOrdersPlaced,
		"total_sl_triggered":  settings.TotalSLTriggered,
		"total_tp_triggered":  settings.TotalTPTriggered,
		"total_pnl_rub":       settings.TotalPnLRub,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}
