package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/priorauth/internal/config"
	"github.com/sells-group/priorauth/internal/intake"
	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/monitoring"
	"github.com/sells-group/priorauth/internal/store"
)

var servePort int

// statsLimit bounds the number of runs aggregated by /runs/stats.
const statsLimit = 10000

// maxCaseBodyBytes caps the size of a POST /cases request body.
const maxCaseBodyBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEvalEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled && env.Store != nil {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API over an evaluation environment.
func newRouter(env *evalEnv, sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := sc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if sc.RateLimitPerSec > 0 {
		burst := sc.RateBurst
		if burst < 1 {
			burst = 1
		}
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(sc.RateLimitPerSec), burst)))
	}

	h := &handlers{env: env}
	r.Get("/health", h.health)
	r.Post("/cases", h.createCase)
	r.Get("/cases/{id}", h.getCase)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/stats", h.runStats)
	return r
}

// rateLimit rejects requests with 429 once the limiter is exhausted.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type handlers struct {
	env *evalEnv
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) createCase(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCaseBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err := intake.DecodeJSON(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err = h.env.prepare(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"report": intake.Inspect(raw),
		})
		return
	}

	res, err := h.env.Runner.Evaluate(r.Context(), raw)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getCase(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return
	}
	run, err := loadRun(r.Context(), h.env.Store, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:    model.Status(q.Get("status")),
		Outcome:   model.Outcome(q.Get("outcome")),
		PatientID: q.Get("patient_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	runs, err := h.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) runStats(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return
	}
	runs, err := h.env.Store.ListRuns(r.Context(), store.RunFilter{Limit: statsLimit})
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, store.ComputeStats(runs))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
