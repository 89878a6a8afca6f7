// Command pricepulse runs the retail price-tracking service: scheduled
// catalog passes per configured retailer, a drop-notification dispatcher,
// and a small read API.
//
// Usage:
//
//	pricepulse -config pricepulse.yaml
//	pricepulse -config pricepulse.yaml -run prettylittlething   # one pass, then exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/pricepulse/pricepulse/adapter"
	"github.com/pricepulse/pricepulse/catalog"
	"github.com/pricepulse/pricepulse/dbopen"
	"github.com/pricepulse/pricepulse/notify"
)

func main() {
	configPath := flag.String("config", env("CONFIG_PATH", "pricepulse.yaml"), "path to YAML config")
	runOnce := flag.String("run", "", "run one pass for a retailer (or 'all') and exit")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *runOnce); err != nil {
		logger.Error("pricepulse: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, runOnce string) error {
	cfg, err := catalog.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := env("DB_PATH", "db/pricepulse.db")
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc, err := catalog.New(db, cfg, catalog.WithLogger(logger))
	if err != nil {
		return err
	}

	browserCfg := cfg.Browser
	if remote := os.Getenv("BROWSER_URL"); remote != "" {
		browserCfg.Remote = remote
	}
	for _, r := range cfg.Retailers {
		svc.RegisterAdapter(r.Name, adapter.NewBrowser(browserCfg, r.Selectors, logger.With("retailer", r.Name)))
	}

	if runOnce != "" {
		if runOnce == "all" {
			return svc.RunAll(ctx)
		}
		run, err := svc.Run(ctx, runOnce)
		if err != nil {
			return err
		}
		logger.Info("pass complete",
			"run", run.ID,
			"created", run.Created,
			"updated", run.Updated,
			"drops", run.Drops)
		return nil
	}

	dispatcher := notify.New(svc, notify.LogSender{Logger: logger}, notify.WithLogger(logger))
	go dispatcher.Run(ctx)
	go svc.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + env("PORT", "8090"),
		Handler:           router(svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func router(svc *catalog.Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/items", func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Items(r.Context(),
			r.URL.Query().Get("retailer"),
			r.URL.Query().Get("state"),
			queryInt(r, "limit"))
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, 200, orEmpty(items))
	})

	r.Get("/api/items/{key}", func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Item(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		if item == nil {
			writeJSON(w, 404, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, 200, item)
	})

	r.Get("/api/items/{key}/history", func(w http.ResponseWriter, r *http.Request) {
		hist, err := svc.History(r.Context(), chi.URLParam(r, "key"), queryInt(r, "limit"))
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, 200, orEmpty(hist))
	})

	r.Get("/api/drops", func(w http.ResponseWriter, r *http.Request) {
		drops, err := svc.Drops(r.Context(), r.URL.Query().Get("retailer"), queryInt(r, "limit"))
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, 200, orEmpty(drops))
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := svc.Runs(r.Context(), r.URL.Query().Get("retailer"), queryInt(r, "limit"))
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, 200, orEmpty(runs))
	})

	r.Post("/api/runs/{retailer}", func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.Run(r.Context(), chi.URLParam(r, "retailer"))
		switch {
		case errors.Is(err, catalog.ErrUnknownRetailer):
			writeJSON(w, 404, map[string]string{"error": err.Error()})
		case err != nil:
			// The run summary carries the failure detail; the row is
			// already persisted.
			writeJSON(w, 502, map[string]any{"error": err.Error(), "run": run})
		default:
			writeJSON(w, 200, run)
		}
	})

	return r
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// orEmpty keeps list endpoints returning [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
