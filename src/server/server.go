package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/model"
	"signalrunner/src/repository"
	"signalrunner/src/security"
)

// EventSearcher is the slice of the event repository the API needs.
type EventSearcher interface {
	Search(ctx context.Context, opts repository.EventSearchOptions) ([]model.LifecycleEvent, error)
}

// StartServer runs the HTTP API until the context is canceled.
func StartServer(ctx context.Context, port string, events *repository.LifecycleEventRepository) {
	securityConfig := security.GetConfig()

	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/healthcheck error")
		}
	})

	// Token-protected observability routes
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(securityConfig.APITokenHash))
		r.Get("/events", eventsHandler(events))
	})

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down HTTP server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

func bearerAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !security.VerifyToken(tokenHash, token) {
				logger.WithField("path", r.URL.Path).Warn("rejected request with invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func eventsHandler(events EventSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := repository.EventSearchOptions{
			Symbol:        r.URL.Query().Get("symbol"),
			CorrelationID: r.URL.Query().Get("correlation_id"),
		}

		if raw := r.URL.Query().Get("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "invalid from timestamp, expected RFC3339", http.StatusBadRequest)
				return
			}
			opts.CreatedAfter = &t
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "invalid to timestamp, expected RFC3339", http.StatusBadRequest)
				return
			}
			opts.CreatedBefore = &t
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			opts.Limit = limit
		}

		result, err := events.Search(r.Context(), opts)
		if err != nil {
			logger.WithError(err).Error("event search failed")
			http.Error(w, "Unable to query events", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode events response")
		}
	}
}
