// Package web serves the reconciliation dashboard: a JSON API over the latest report and an SSE stream of run
// summaries.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/events"
	"github.com/vadiminshakov/cointax/internal/export"
	"github.com/vadiminshakov/cointax/internal/services/history"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
	"github.com/vadiminshakov/cointax/internal/services/tax"
)

const summaryPollInterval = 3 * time.Second

type summaryReader interface {
	SummariesAfter(index uint64) ([]domain.RunSummaryRecord, error)
	Latest() (domain.RunSummaryRecord, bool, error)
}

type reportSource interface {
	Latest(ctx context.Context) (*reconciler.Report, error)
	Refresh(ctx context.Context) (*reconciler.Report, error)
}

// Server exposes the dashboard UI, the JSON API and the run summary stream.
type Server struct {
	Addr string

	l            *zap.Logger
	reports      reportSource
	store        summaryReader
	bus          *events.RunBroadcaster
	tax          config.Tax
	pollInterval time.Duration
	now          func() time.Time
}

// NewServer creates a new web server instance. store may be nil, which disables the stream. bus is optional; with
// it streams wake up as soon as a run finishes instead of on the next poll.
func NewServer(l *zap.Logger, addr string, reports reportSource, store summaryReader, bus *events.RunBroadcaster, taxCfg config.Tax) *Server {
	return &Server{
		Addr:         addr,
		l:            l,
		reports:      reports,
		store:        store,
		bus:          bus,
		tax:          taxCfg,
		pollInterval: summaryPollInterval,
		now:          time.Now,
	}
}

// Handler routes every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/tax", s.handleTax)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/ledger.csv", s.handleLedgerCSV)
	mux.HandleFunc("GET /api/lots.csv", s.handleLotsCSV)
	mux.HandleFunc("GET /api/runs/latest", s.handleLastRun)
	mux.HandleFunc("GET /reports/stream", s.handleSummaryStream)

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	// HTTP server on port 80 for ACME challenges and HTTP->HTTPS redirects.
	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("dashboard listening with autocert", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*reconciler.Report, bool) {
	report, err := s.reports.Latest(r.Context())
	if err != nil {
		s.l.Error("reconciliation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reconciliation failed")
		return nil, false
	}

	return report, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.Overview())
}

// handleLastRun serves the last recorded summary so the page has numbers before the first reconciliation ends.
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run summary store not available")
		return
	}
	record, ok, err := s.store.Latest()
	if err != nil {
		s.l.Error("read last run summary", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run summaries")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Refresh(r.Context())
	if err != nil {
		s.l.Error("reconciliation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, report.Overview())
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	window, err := history.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, ok := s.latest(w, r)
	if !ok {
		return
	}

	series, err := report.Series(window)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, series)
}

type taxResponse struct {
	Totals   tax.YearTotals `json:"totals"`
	Total    string         `json:"total"`
	Estimate tax.Estimate   `json:"estimate"`
	Years    []int          `json:"years"`
}

func (s *Server) handleTax(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	year := s.tax.Year
	if year == 0 {
		year = tax.ReportingYear(s.now())
	}
	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid year %q", raw))
			return
		}
		year = y
	}

	income := s.tax.OtherIncome
	if raw := q.Get("income"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid income %q", raw))
			return
		}
		income = v
	}

	report, ok := s.latest(w, r)
	if !ok {
		return
	}

	totals := report.Tax(year)
	writeJSON(w, http.StatusOK, taxResponse{
		Totals:   totals,
		Total:    totals.Total().String(),
		Estimate: totals.Estimate(income, s.tax.ShortTerm, s.tax.LongTerm),
		Years:    tax.Years(report.Matches.Lots),
	})
}

type ledgerRow struct {
	domain.LedgerEntry
	Explorer string `json:"explorer"`
}

type ledgerResponse struct {
	Rows  []ledgerRow `json:"rows"`
	Page  int         `json:"page"`
	Pages int         `json:"pages"`
	Total int         `json:"total"`
}

func (s *Server) filtered(w http.ResponseWriter, r *http.Request) (domain.Ledger, bool) {
	q := r.URL.Query()
	filter, err := export.ParseFilter(q.Get("asset"), q.Get("type"), q.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	report, ok := s.latest(w, r)
	if !ok {
		return nil, false
	}

	return export.Apply(report.Ledger, filter), true
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page %q", raw))
			return
		}
		page = p
	}

	rows, ok := s.filtered(w, r)
	if !ok {
		return
	}

	p, err := export.Paginate(rows, page)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ledgerResponse{Rows: make([]ledgerRow, 0, len(p.Rows)), Page: p.Page, Pages: p.Pages, Total: p.Total}
	for _, e := range p.Rows {
		resp.Rows = append(resp.Rows, ledgerRow{LedgerEntry: e, Explorer: e.Asset.ExplorerURL(e.ExternalID)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerCSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.filtered(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := export.WriteLedger(w, rows); err != nil {
		s.l.Error("ledger csv export failed", zap.Error(err))
	}
}

func (s *Server) handleLotsCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="gain-lots.csv"`)
	if err := export.WriteLots(w, report.Matches.Lots); err != nil {
		s.l.Error("lots csv export failed", zap.Error(err))
	}
}

func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "run summary store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// send a comment heartbeat every 20s so proxies keep connection
	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	var wake chan domain.RunSummary
	if s.bus != nil {
		wake = s.bus.Subscribe()
		defer s.bus.Unsubscribe(wake)
	}

	lastIndex := s.parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendSummaries := func() error {
		records, err := s.store.SummariesAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Summary)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: run\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSummaries(); err != nil {
		http.Error(w, "failed to load run summaries", http.StatusInternalServerError)
		s.l.Error("summary stream initial load", zap.Error(err))
		return
	}

	// let the client leave the loading state when nothing was stored yet
	if lastIndex == 0 {
		fmt.Fprintf(w, "event: no_data\n")
		fmt.Fprintf(w, "data: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSummaries(); err != nil {
				s.l.Warn("summary stream poll err", zap.Error(err))
			}
		case summary := <-wake:
			s.l.Debug("run finished, pushing summaries", zap.String("run", summary.RunID))
			if err := sendSummaries(); err != nil {
				s.l.Warn("summary stream push err", zap.Error(err))
			}
		}
	}
}

func (s *Server) parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		s.l.Debug("invalid last event id", zap.String("id", idStr), zap.Error(err))
		return 0
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
