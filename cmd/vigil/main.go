package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/vigil/dbopen"
	"github.com/hazyhaar/vigil/jobq"
	"github.com/hazyhaar/vigil/monitor"
	_ "modernc.org/sqlite"
)

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := monitor.LoadConfig(os.Getenv("VIGIL_CONFIG"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	notifier, err := monitor.NotifierFromConfig(cfg.Notify, logger)
	if err != nil {
		slog.Error("build notifier", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	svc, err := monitor.New(db, cfg, logger, monitor.WithNotifier(notifier))
	if err != nil {
		slog.Error("init monitor", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	// Blocks until the signal context is cancelled.
	svc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
}

func newRouter(svc *monitor.Service) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/targets", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				Owner          string `json:"owner"`
				URL            string `json:"url"`
				Type           string `json:"type"`
				CheckFrequency string `json:"check_frequency"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON")
				return
			}
			var freq time.Duration
			if in.CheckFrequency != "" {
				var err error
				freq, err = time.ParseDuration(in.CheckFrequency)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid check_frequency")
					return
				}
			}
			tgt, err := svc.CreateTarget(req.Context(), in.Owner, in.URL, in.Type, freq)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, tgt)
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			owner := req.URL.Query().Get("owner")
			if owner == "" {
				writeError(w, http.StatusBadRequest, "owner query parameter required")
				return
			}
			targets, err := svc.ListTargets(req.Context(), owner)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, targets)
		})

		r.Route("/{targetID}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				tgt, err := svc.GetTarget(req.Context(), chi.URLParam(req, "targetID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, tgt)
			})

			r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
				if err := svc.DeleteTarget(req.Context(), chi.URLParam(req, "targetID")); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/check", func(w http.ResponseWriter, req *http.Request) {
				jobID, err := svc.TriggerCheck(req.Context(), chi.URLParam(req, "targetID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
			})

			r.Post("/active", func(w http.ResponseWriter, req *http.Request) {
				var in struct {
					Active bool `json:"active"`
				}
				if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
					writeError(w, http.StatusBadRequest, "invalid JSON")
					return
				}
				if err := svc.SetActive(req.Context(), chi.URLParam(req, "targetID"), in.Active); err != nil {
					writeServiceError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Get("/snapshots", func(w http.ResponseWriter, req *http.Request) {
				snaps, err := svc.ListSnapshots(req.Context(), chi.URLParam(req, "targetID"), 50)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, snaps)
			})

			r.Get("/changes", func(w http.ResponseWriter, req *http.Request) {
				since := time.Unix(0, 0)
				if raw := req.URL.Query().Get("since"); raw != "" {
					parsed, err := time.Parse(time.RFC3339, raw)
					if err != nil {
						writeError(w, http.StatusBadRequest, "since must be RFC 3339")
						return
					}
					since = parsed
				}
				changes, err := svc.ListChanges(req.Context(), chi.URLParam(req, "targetID"), since)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, changes)
			})
		})
	})

	r.Get("/api/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
		job, err := svc.GetJob(req.Context(), chi.URLParam(req, "jobID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	return r
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitor.ErrTargetNotFound), errors.Is(err, jobq.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, monitor.ErrDuplicateTarget), errors.Is(err, jobq.ErrInFlight):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
