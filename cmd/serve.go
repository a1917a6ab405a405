package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/store"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs, benchmarks and rankings over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		processMetrics()
		router := buildRouter(st, monitoring.NewCollector(st), prometheus.DefaultGatherer)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
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

// api serves read-only views of the store.
type api struct {
	store     store.Store
	collector *monitoring.Collector
}

// buildRouter wires the HTTP routes.
func buildRouter(st store.Store, collector *monitoring.Collector, gatherer prometheus.Gatherer) http.Handler {
	a := &api{store: st, collector: collector}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", a.listRuns)
		r.Get("/runs/{id}", a.getRun)
		r.Get("/benchmarks", a.listBenchmarks)
		r.Get("/rankings", a.listRankings)
		r.Get("/companies/{cik}/metrics", a.companyMetrics)
		r.Get("/status", a.status)
	})
	return r
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.FY, err = intParam(q.Get("fy"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fy")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		a.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		a.internalError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) listBenchmarks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fy, err := intParam(q.Get("fy"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fy")
		return
	}
	records, err := a.store.ListBenchmarks(r.Context(), store.BenchmarkFilter{
		RunID:    q.Get("run_id"),
		FY:       fy,
		Metric:   q.Get("metric"),
		Industry: q.Get("industry"),
	})
	if err != nil {
		a.internalError(w, "list benchmarks", err)
		return
	}
	if records == nil {
		records = []model.BenchmarkRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *api) listRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fy, err := intParam(q.Get("fy"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fy")
		return
	}
	typ := model.RankingType(q.Get("type"))
	if typ != "" && typ != model.RankingTop10 && typ != model.RankingAll {
		writeError(w, http.StatusBadRequest, "type must be Top10 or All")
		return
	}
	records, err := a.store.ListRankings(r.Context(), store.RankingFilter{
		RunID:    q.Get("run_id"),
		FY:       fy,
		Metric:   q.Get("metric"),
		Type:     typ,
		Industry: q.Get("industry"),
	})
	if err != nil {
		a.internalError(w, "list rankings", err)
		return
	}
	if records == nil {
		records = []model.RankingRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *api) companyMetrics(w http.ResponseWriter, r *http.Request) {
	fy, err := intParam(r.URL.Query().Get("fy"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fy")
		return
	}
	cik := xbrl.PadCIK(chi.URLParam(r, "cik"))
	metrics, err := a.store.CompanyMetrics(r.Context(), cik, fy)
	if err != nil {
		a.internalError(w, "company metrics", err)
		return
	}
	if len(metrics) == 0 {
		writeError(w, http.StatusNotFound, "no metrics for company")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cik":     cik,
		"metrics": metrics,
	})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r.URL.Query().Get("hours"), 24)
	if err != nil || hours <= 0 {
		writeError(w, http.StatusBadRequest, "invalid hours")
		return
	}
	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		a.internalError(w, "collect status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// intParam parses an optional integer query parameter.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
