// Package server реализует HTTP-сервер проверки состояния бота.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wialonblock/internal/ports"
)

const remoteCheckTimeout = 10 * time.Second

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	sessions   ports.SessionFactory
	chats      int
	logger     *slog.Logger
}

// New создает сервер. sessions используется для проверки доступности Wialon,
// chats — число настроенных чатов.
func New(addr string, sessions ports.SessionFactory, chats int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		chats:    chats,
		logger:   logger,
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.RequestID)
	chiRouter.Use(middleware.RequestLogger(slogFormatter{logger: logger}))
	chiRouter.Use(middleware.Recoverer)

	chiRouter.Get("/health", s.handleHealth)
	chiRouter.Get("/health/remote", s.handleRemoteHealth)

	s.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * remoteCheckTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// handleHealth сообщает, что процесс жив.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chats":  s.chats,
	})
}

// handleRemoteHealth открывает и закрывает один сеанс Wialon.
func (s *Server) handleRemoteHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteCheckTimeout)
	defer cancel()

	start := time.Now()
	session, err := s.sessions.Open(ctx)
	if err != nil {
		s.logger.Warn("remote health check failed",
			slog.String("request_id", middleware.GetReqID(r.Context())), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
		})
		return
	}
	if err := session.Logout(ctx); err != nil {
		s.logger.Warn("remote health check logout failed", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe запускает сервер. Штатная остановка через Shutdown не считается ошибкой.
func (s *Server) ListenAndServe() error {
	s.logger.Info("health server listening", slog.String("addr", s.HTTPServer.Addr))
	if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down health server")
	return s.HTTPServer.Shutdown(ctx)
}
