package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/paybills/pkg/config"
	"github.com/yurifrl/paybills/pkg/executors"
	"github.com/yurifrl/paybills/pkg/ledger"
	"github.com/yurifrl/paybills/pkg/models"
	"github.com/yurifrl/paybills/pkg/report"
)

const sheetCSV = "ID,Date,Amount,Vendor\nA1,2025-01-01,100.00,X\nB2,2025-01-01,50.00,\n"

func newServer(mem *ledger.Memory) *Server {
	cfg := &config.Config{Ledger: config.Ledger{Kind: config.LedgerMemory}}
	return New(executors.New(log.Default(), cfg, mem.Opener(), nil), log.Default())
}

func upload(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("workbook", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) report.Payload {
	t.Helper()
	var p report.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid response %q: %v", rec.Body.String(), err)
	}
	return p
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(ledger.NewMemory(nil, nil)).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestCompare(t *testing.T) {
	mem := ledger.NewMemory(nil, []models.Obligation{{ID: "o1", AmountDue: decimal.NewFromInt(100), Vendor: "X"}})
	srv := newServer(mem)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, upload(t, "/api/compare", "data.csv", sheetCSV, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p := decode(t, rec)
	if p.ExternalOnlyCount != 2 || p.WriteBack.Attempted {
		t.Errorf("unexpected compare payload: %+v", p)
	}
	if len(mem.Submitted) != 0 {
		t.Errorf("expected compare not to submit")
	}
}

func TestSyncAndDownload(t *testing.T) {
	mem := ledger.NewMemory(nil, []models.Obligation{{ID: "o1", AmountDue: decimal.NewFromInt(100), Vendor: "X"}})
	srv := newServer(mem)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, upload(t, "/api/sync", "data.csv", sheetCSV, map[string]string{"sheet": "vendor"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p := decode(t, rec)
	if p.AddedCount != 1 || p.PaymentsAdded[0].ID != "A1" {
		t.Fatalf("expected A1 added, got %+v", p.PaymentsAdded)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+p.RunID+".csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/csv" || !strings.Contains(rec.Body.String(), "added,A1,") {
		t.Errorf("unexpected csv report: %s", rec.Body.String())
	}
}

func TestReportsExpire(t *testing.T) {
	srv := newServer(ledger.NewMemory(nil, nil))
	srv.reports = cache.New(20*time.Millisecond, time.Minute)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, upload(t, "/api/compare", "data.csv", sheetCSV, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	runID := decode(t, rec).RunID

	time.Sleep(50 * time.Millisecond)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+runID+".json", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an expired report, got %d", rec.Code)
	}
	srv.reports.DeleteExpired()
	if srv.reports.ItemCount() != 0 {
		t.Errorf("expected expired reports evicted, got %d", srv.reports.ItemCount())
	}
}

func TestSyncLedgerFailure(t *testing.T) {
	mem := ledger.NewMemory(nil, nil)
	mem.ReadErr = http.ErrHandlerTimeout

	rec := httptest.NewRecorder()
	newServer(mem).Handler().ServeHTTP(rec, upload(t, "/api/sync", "data.csv", sheetCSV, nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if p := decode(t, rec); p.Status != report.StatusError {
		t.Errorf("expected error payload, got %+v", p)
	}
}

func TestRunRejects(t *testing.T) {
	srv := newServer(ledger.NewMemory(nil, nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, upload(t, "/api/compare", "data.ods", "x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unsupported format, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, upload(t, "/api/compare", "data.csv", sheetCSV, map[string]string{"skip_ledger": "maybe"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad skip_ledger, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/unknown.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
