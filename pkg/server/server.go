package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"

	"github.com/yurifrl/paybills/pkg/executors"
	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/report"
	"github.com/yurifrl/paybills/pkg/workbook"
)

const maxUploadBytes = 32 << 20

// Finished reports stay downloadable for reportTTL.
const (
	reportTTL     = time.Hour
	reportCleanup = 10 * time.Minute
)

// Server exposes reconciliation runs over HTTP
type Server struct {
	logger  *log.Logger
	exec    *executors.Executor
	mux     *http.ServeMux
	reports *cache.Cache
}

// New creates a new HTTP server
func New(exec *executors.Executor, logger *log.Logger) *Server {
	s := &Server{
		logger:  logger,
		exec:    exec,
		mux:     http.NewServeMux(),
		reports: cache.New(reportTTL, reportCleanup),
	}
	s.setupRoutes()
	return s
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/healthz", s.withLogging(s.handleHealth))
	s.mux.HandleFunc("/api/compare", s.withLogging(s.handleCompare))
	s.mux.HandleFunc("/api/sync", s.withLogging(s.handleSync))
	s.mux.HandleFunc("/api/reports/", s.withLogging(s.handleReports))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// handleCompare reconciles an uploaded workbook without writing to the ledger.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	s.handleRun(w, r, false)
}

// handleSync reconciles an uploaded workbook and creates missing payments.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.handleRun(w, r, true)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, writeBack bool) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("workbook")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "workbook file required", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read workbook", err)
		return
	}

	run := executors.Run{
		Workbook: header.Filename,
		Sheet:    r.FormValue("sheet"),
		Data:     data,
	}
	if v := r.FormValue("skip_ledger"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "skip_ledger must be a boolean", err)
			return
		}
		run.SkipLedger = skip
	}

	var p *report.Payload
	if writeBack {
		p, err = s.exec.Apply(r.Context(), run)
	} else {
		p, err = s.exec.Plan(r.Context(), run)
	}
	s.reports.SetDefault(p.RunID, p)

	status := http.StatusOK
	if err != nil {
		status = runStatus(err)
	}
	s.logger.Info("run complete", "run_id", p.RunID, "file", header.Filename, "status", p.Status,
		"added", p.AddedCount, "conflicts", len(p.Conflicts))
	if err := s.writeJSON(w, status, p); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// runStatus maps a run error onto the response code. A failed write-back
// still answers 200 since the comparison succeeded.
func runStatus(err error) int {
	var cerr *ledger.CollaboratorError
	switch {
	case errors.Is(err, executors.ErrWriteBack):
		return http.StatusOK
	case errors.As(err, &cerr):
		return http.StatusBadGateway
	case errors.Is(err, workbook.ErrSheetNotFound), errors.Is(err, workbook.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleReports serves a payload from an earlier run as /api/reports/<run_id>.<ext>,
// encoded after the extension.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if name == "" {
		s.respondError(w, r, http.StatusBadRequest, "report name required", nil)
		return
	}
	ext := path.Ext(name)
	if ext == "" {
		ext = ".json"
		name += ext
	}
	runID := strings.TrimSuffix(name, ext)

	value, ok := s.reports.Get(runID)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "report not found", nil)
		return
	}
	p, ok := value.(*report.Payload)
	if !ok {
		s.respondError(w, r, http.StatusInternalServerError, "internal type assertion error", nil)
		return
	}

	data, err := report.Encode(p, name)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to encode report", err)
		return
	}

	w.Header().Set("Content-Type", contentType(ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write report response", "err", err)
	}
}

func contentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log request start/end and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
