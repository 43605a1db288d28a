package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"conncheck/internal/domain"
	"conncheck/internal/httpapi/middleware"
	"conncheck/internal/metrics"
	"conncheck/internal/repo"
)

// RunFunc executes one diagnostic run and returns the finished report.
// The callback owns recording (history, metrics, output files); the
// handlers only trigger it and render the result.
type RunFunc func(ctx context.Context) *domain.Report

type Server struct {
	Logger  *zap.Logger
	Run     RunFunc
	History repo.RunStore
	Metrics *metrics.Metrics
}

func NewServer(l *zap.Logger, run RunFunc, history repo.RunStore, m *metrics.Metrics) *Server {
	return &Server{Logger: l, Run: run, History: history, Metrics: m}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.RequestLogger(s.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.With(middleware.Exclusive()).Post("/api/run", s.handleRun)
	r.Get("/api/report", s.handleReport)
	r.Get("/api/report/rows", s.handleReportRows)
	r.Get("/api/runs", s.handleRuns)

	return r
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rep := s.Run(r.Context())
	s.Logger.Info("run_triggered",
		zap.String("run_id", rep.Meta.RunID),
		zap.Int("failures", rep.Failures()),
		zap.Int("errors", len(rep.Errors)),
	)
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.History.Latest(r.Context())
	if err != nil {
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}
	if rep == nil {
		http.Error(w, "no runs yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReportRows(w http.ResponseWriter, r *http.Request) {
	rep, err := s.History.Latest(r.Context())
	if err != nil {
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}
	if rep == nil {
		http.Error(w, "no runs yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rep.Flatten())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	list, err := s.History.List(r.Context())
	if err != nil {
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []repo.RunSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
