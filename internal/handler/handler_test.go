package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sismed/internal/domain"
	"sismed/internal/facade"
	"sismed/internal/metrics"
	"sismed/internal/repository/sqlite"
	"sismed/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg Config) *echo.Echo {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "sismed.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	log := zerolog.Nop()
	bus := service.NewEventBus()
	svcs := facade.Services{
		Records:   service.NewRecordsService(repo, bus, log),
		Documents: service.NewDocumentService(log),
		Backups:   service.NewBackupService(repo, service.BackupConfig{}, bus, log),
		Catalog:   service.NewCatalogService(repo, bus, log),
	}
	m := metrics.New()
	return New(cfg, Deps{
		Facade:   facade.New(svcs, m),
		Services: svcs,
		Metrics:  m,
		Log:      log,
	})
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Errorf(domain.KindInvalid, "op", "bad"), http.StatusBadRequest},
		{domain.ErrCancelled, http.StatusBadRequest},
		{domain.Errorf(domain.KindNotFound, "op", "gone"), http.StatusNotFound},
		{domain.Errorf(domain.KindConstraint, "op", "dup"), http.StatusConflict},
		{domain.Errorf(domain.KindIOFailure, "op", "disk"), http.StatusInternalServerError},
		{domain.Errorf(domain.KindStorageUnavailable, "op", "gone"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPatientRoutes(t *testing.T) {
	e := newTestServer(t, Config{})

	rec := do(e, http.MethodPost, "/api/patients", `{"name":"ana silva","national_id":"123","birth_date":"1980-05-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[IDResponse](t, rec); got.ID != 1 {
		t.Errorf("id = %d, want 1", got.ID)
	}

	rec = do(e, http.MethodPost, "/api/patients", `{"name":"ANA SILVA","national_id":"123","birth_date":"1980-05-01"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}
	if msg := decodeBody[ErrorResponse](t, rec).Error; !strings.Contains(msg, "constraint violation") {
		t.Errorf("unexpected error message %q", msg)
	}

	rec = do(e, http.MethodPut, "/api/patients/1", `{"name":"ana souza","national_id":"123","birth_date":"1980-05-01"}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("update status = %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/patients", "")
	patients := decodeBody[[]domain.Patient](t, rec)
	if len(patients) != 1 || patients[0].Name != "ANA SOUZA" {
		t.Errorf("unexpected patients %+v", patients)
	}

	rec = do(e, http.MethodDelete, "/api/patients/1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = do(e, http.MethodDelete, "/api/patients/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestPrescriptionRoutes(t *testing.T) {
	e := newTestServer(t, Config{})

	do(e, http.MethodPost, "/api/patients", `{"name":"ana","national_id":"1","birth_date":"1980-05-01"}`)
	rec := do(e, http.MethodPost, "/api/prescriptions", `{"patient_id":1,"date":"2024-03-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create prescription status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/prescriptions/1/medicines", `{"medicine_id":1,"instructions":"1 ao dia"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add line status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/prescriptions/1", "")
	detail := decodeBody[domain.PrescriptionWithMedicines](t, rec)
	if len(detail.Medicines) != 1 || detail.Medicines[0].Instructions != "1 AO DIA" {
		t.Errorf("unexpected detail %+v", detail)
	}

	rec = do(e, http.MethodGet, "/api/patients/1/prescriptions", "")
	if list := decodeBody[[]domain.Prescription](t, rec); len(list) != 1 {
		t.Errorf("expected one prescription, got %d", len(list))
	}

	rec = do(e, http.MethodGet, "/api/prescriptions/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing prescription status = %d", rec.Code)
	}
}

func TestInvokeRoute(t *testing.T) {
	e := newTestServer(t, Config{})

	rec := do(e, http.MethodPost, "/api/invoke/create_posology", `{"posology":{"text":"a cada 2 horas"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[InvokeResponse](t, rec); got.Result != float64(11) {
		t.Errorf("result = %v, want 11", got.Result)
	}

	rec = do(e, http.MethodPost, "/api/invoke/nope", "{}")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command status = %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/api/backup", `{"path":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("cancelled backup status = %d", rec.Code)
	}
	if msg := decodeBody[ErrorResponse](t, rec).Error; !strings.Contains(msg, "operation cancelled") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestCatalogRoutes(t *testing.T) {
	e := newTestServer(t, Config{})

	rec := do(e, http.MethodGet, "/api/catalog?format=json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	catalog := decodeBody[domain.Catalog](t, rec)
	if len(catalog.Medicines) != 36 || len(catalog.Posologies) != 10 {
		t.Errorf("unexpected catalog sizes %d/%d", len(catalog.Medicines), len(catalog.Posologies))
	}

	rec = do(e, http.MethodGet, "/api/catalog?format=xml", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestServer(t, Config{})

	rec := do(e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	health := decodeBody[struct {
		Status string        `json:"status"`
		Counts domain.Counts `json:"counts"`
	}](t, rec)
	if health.Status != "ok" || health.Counts.Medicines != 36 {
		t.Errorf("unexpected health %+v", health)
	}

	rec = do(e, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `sismed_http_requests_total{code="200",method="GET",route="/healthz"} 1`) {
		t.Errorf("http counter missing:\n%s", rec.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	e := newTestServer(t, Config{})

	rec := do(e, http.MethodGet, "/api/posologies", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posologies", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestCORS(t *testing.T) {
	e := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:1420"}})

	req := httptest.NewRequest(http.MethodGet, "/api/medicines", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:1420")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "http://localhost:1420" {
		t.Errorf("allow origin = %q", got)
	}
}

// send issues a request with explicit content type and origin headers
func send(e *echo.Echo, method, target, contentType, origin, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestContentTypeGuard(t *testing.T) {
	pdfDir := t.TempDir()
	e := newTestServer(t, Config{})

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        int
	}{
		{"plain text command", "/api/invoke/create_patient", "text/plain",
			`{"patient":{"name":"x","national_id":"9","birth_date":"2000-01-01"}}`, http.StatusUnsupportedMediaType},
		{"form post", "/api/patients", "application/x-www-form-urlencoded",
			`name=x`, http.StatusUnsupportedMediaType},
		{"missing content type", "/api/restore", "", `{"path":"/tmp/x.db"}`, http.StatusUnsupportedMediaType},
		{"plain text pdf", "/api/documents/pdf", "text/plain",
			`{"data":[37,80],"filename":"x","path":"` + pdfDir + `"}`, http.StatusUnsupportedMediaType},
		{"yaml outside catalog", "/api/posologies", "application/yaml", `text: x`, http.StatusUnsupportedMediaType},
		{"json with charset", "/api/posologies", "application/json; charset=utf-8",
			`{"text":"a cada 8 horas"}`, http.StatusCreated},
		{"yaml catalog import", "/api/catalog?format=yaml", "application/yaml",
			"posologies:\n  - 2 gotas\n", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(e, http.MethodPost, tt.target, tt.contentType, "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	patients := decodeBody[[]domain.Patient](t, do(e, http.MethodGet, "/api/patients", ""))
	if len(patients) != 0 {
		t.Errorf("rejected requests created patients: %+v", patients)
	}
	if entries, _ := os.ReadDir(pdfDir); len(entries) != 0 {
		t.Errorf("rejected pdf request wrote %d files", len(entries))
	}
}

func TestOriginGuard(t *testing.T) {
	const body = `{"text":"uso tópico"}`

	t.Run("no configured origins", func(t *testing.T) {
		e := newTestServer(t, Config{})

		rec := send(e, http.MethodPost, "/api/posologies", echo.MIMEApplicationJSON, "https://evil.example", body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("foreign origin status = %d", rec.Code)
		}
		if msg := decodeBody[ErrorResponse](t, rec).Error; msg != "origin not allowed" {
			t.Errorf("message = %q", msg)
		}

		// httptest requests target example.com
		rec = send(e, http.MethodGet, "/api/posologies", "", "http://example.com", "")
		if rec.Code != http.StatusOK {
			t.Errorf("same origin status = %d", rec.Code)
		}

		rec = send(e, http.MethodPost, "/api/posologies", echo.MIMEApplicationJSON, "", body)
		if rec.Code != http.StatusCreated {
			t.Errorf("no origin status = %d", rec.Code)
		}
	})

	t.Run("configured origin", func(t *testing.T) {
		e := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:1420"}})

		rec := send(e, http.MethodPost, "/api/posologies", echo.MIMEApplicationJSON, "http://localhost:1420", body)
		if rec.Code != http.StatusCreated {
			t.Errorf("allowed origin status = %d: %s", rec.Code, rec.Body.String())
		}

		rec = send(e, http.MethodDelete, "/api/posologies/1", "", "https://evil.example", "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("foreign delete status = %d", rec.Code)
		}
	})
}

func TestRecovery(t *testing.T) {
	e := newTestServer(t, Config{})
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := do(e, http.MethodGet, "/boom", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if msg := decodeBody[ErrorResponse](t, rec).Error; msg != "internal server error" {
		t.Errorf("message = %q", msg)
	}
}
