package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportReader serves stored reports. *store.Store implements it.
type ReportReader interface {
	LatestReport(ctx context.Context, region, indicator string) (domain.Report, error)
	Report(ctx context.Context, id string) (domain.Report, error)
	ListReports(ctx context.Context, f store.Filter) ([]store.ReportSummary, error)
}

// Server exposes health, readiness, metrics and report HTTP endpoints.
type Server struct {
	httpServer *http.Server
	reports    ReportReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics
// routes, plus the report routes when reports is non-nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports ReportReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reports: reports,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if reports != nil {
		mux.HandleFunc("GET /reports", s.handleList)
		mux.HandleFunc("GET /reports/id/{id}", s.handleByID)
		mux.HandleFunc("GET /reports/{region}/{indicator}", s.handleLatest)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	region, indicator := r.PathValue("region"), r.PathValue("indicator")
	report, err := s.reports.LatestReport(r.Context(), region, indicator)
	s.writeReport(w, report, err, "region", region, "indicator", indicator)
}

func (s *Server) handleByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := s.reports.Report(r.Context(), id)
	s.writeReport(w, report, err, "id", id)
}

func (s *Server) writeReport(w http.ResponseWriter, report domain.Report, err error, logArgs ...any) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no report found"})
	case err != nil:
		s.logger.Error("report lookup failed", append([]any{"error", err}, logArgs...)...)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch report"})
	default:
		sharedobs.WriteJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{Region: q.Get("region"), Verdict: q.Get("verdict")}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 1000 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1-1000"})
			return
		}
		f.Limit = n
	}

	list, err := s.reports.ListReports(r.Context(), f)
	if err != nil {
		s.logger.Error("report listing failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list reports"})
		return
	}
	if list == nil {
		list = []store.ReportSummary{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"reports": list})
}
