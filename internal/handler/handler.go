package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"sismed/internal/domain"
	"sismed/internal/facade"
	"sismed/internal/metrics"
	"sismed/internal/service"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// maxBody bounds request bodies; PDFs arrive as JSON byte arrays
const maxBody = "32M"

// yamlTypes are accepted by catalog import next to JSON
var yamlTypes = []string{"application/yaml", "application/x-yaml", "text/yaml"}

// Config configures the HTTP surface
type Config struct {
	// CORSOrigins lists the browser origins allowed to call /api besides
	// the server's own. Empty disables CORS headers.
	CORSOrigins []string
}

// Deps are the collaborators served over HTTP
type Deps struct {
	Facade   *facade.Facade
	Services facade.Services
	// Events serves the SSE stream at /events when set
	Events  http.Handler
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// IDResponse is returned by create operations
type IDResponse struct {
	ID int64 `json:"id"`
}

// InvokeResponse wraps a facade command result
type InvokeResponse struct {
	Result any `json:"result"`
}

// API handles the REST and command endpoints. Document, backup and
// restore requests go through the facade so they accept the same
// arguments as the command endpoint.
type API struct {
	facade  *facade.Facade
	records *service.RecordsService
	catalog *service.CatalogService
}

// New builds the echo server with middleware and every route registered
func New(cfg Config, d Deps) *echo.Echo {
	log := d.Log.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(Recovery(log))
	e.Use(RequestID())
	e.Use(Logger(log))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{echo.HeaderContentType, RequestIDHeader},
			ExposeHeaders: []string{RequestIDHeader},
		}))
	}
	e.Use(Metrics(d.Metrics))
	e.Use(echomw.BodyLimit(maxBody))

	a := &API{
		facade:  d.Facade,
		records: d.Services.Records,
		catalog: d.Services.Catalog,
	}
	a.Register(e,
		OriginGuard(cfg.CORSOrigins),
		RequireContentType(
			[]string{echo.MIMEApplicationJSON},
			map[string][]string{"/api/catalog": yamlTypes},
		),
	)

	e.GET("/healthz", a.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	if d.Events != nil {
		e.GET("/events", echo.WrapHandler(d.Events))
	}
	return e
}

// Register mounts the /api routes on e behind m
func (a *API) Register(e *echo.Echo, m ...echo.MiddlewareFunc) {
	g := e.Group("/api", m...)

	g.POST("/invoke/:command", a.Invoke)

	g.GET("/patients", a.ListPatients)
	g.POST("/patients", a.CreatePatient)
	g.PUT("/patients/:id", a.UpdatePatient)
	g.DELETE("/patients/:id", a.DeletePatient)
	g.GET("/patients/:id/prescriptions", a.ListPatientPrescriptions)

	g.GET("/medicines", a.ListMedicines)
	g.POST("/medicines", a.CreateMedicine)
	g.PUT("/medicines/:id", a.UpdateMedicine)
	g.DELETE("/medicines/:id", a.DeleteMedicine)

	g.GET("/posologies", a.ListPosologies)
	g.POST("/posologies", a.CreatePosology)
	g.PUT("/posologies/:id", a.UpdatePosology)
	g.DELETE("/posologies/:id", a.DeletePosology)

	g.POST("/prescriptions", a.CreatePrescription)
	g.GET("/prescriptions/:id", a.GetPrescription)
	g.GET("/prescriptions/:id/medicines", a.ListPrescriptionMedicines)
	g.POST("/prescriptions/:id/medicines", a.AddPrescriptionMedicine)

	g.POST("/documents/pdf", a.command("save_pdf"))
	g.POST("/backup", a.command("backup_database"))
	g.POST("/restore", a.command("restore_database"))

	g.GET("/catalog", a.ExportCatalog)
	g.POST("/catalog", a.ImportCatalog)
}

// StatusFor maps an error kind to an HTTP status
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalid, domain.KindCancelled:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConstraint:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusFor(err)
		msg := facade.Message(err)
		var de *domain.Error
		var he *echo.HTTPError
		if !errors.As(err, &de) && errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg})
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to write error response")
		}
	}
}

// ============================================================================
// Command endpoint
// ============================================================================

// Invoke runs a named facade command with the request body as arguments
func (a *API) Invoke(c echo.Context) error {
	return a.runCommand(c, c.Param("command"))
}

func (a *API) command(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return a.runCommand(c, name)
	}
}

func (a *API) runCommand(c echo.Context, name string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return domain.E(domain.KindInvalid, name, err)
	}
	result, err := a.facade.Invoke(c.Request().Context(), name, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InvokeResponse{Result: result})
}

// Health reports row counts per table
func (a *API) Health(c echo.Context) error {
	counts, err := a.records.Counts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "counts": counts})
}

// ============================================================================
// Patients
// ============================================================================

func (a *API) ListPatients(c echo.Context) error {
	patients, err := a.records.ListPatients(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patients)
}

func (a *API) CreatePatient(c echo.Context) error {
	var p domain.Patient
	if err := bind(c, "create patient", &p); err != nil {
		return err
	}
	id, err := a.records.CreatePatient(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (a *API) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var p domain.Patient
	if err := bind(c, "update patient", &p); err != nil {
		return err
	}
	if _, err := a.records.UpdatePatient(c.Request().Context(), id, p); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) DeletePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if _, err := a.records.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) ListPatientPrescriptions(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := a.records.ListPrescriptionsByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// ============================================================================
// Medicines
// ============================================================================

func (a *API) ListMedicines(c echo.Context) error {
	medicines, err := a.records.ListMedicines(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, medicines)
}

func (a *API) CreateMedicine(c echo.Context) error {
	var m domain.Medicine
	if err := bind(c, "create medicine", &m); err != nil {
		return err
	}
	id, err := a.records.CreateMedicine(c.Request().Context(), m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (a *API) UpdateMedicine(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var m domain.Medicine
	if err := bind(c, "update medicine", &m); err != nil {
		return err
	}
	if _, err := a.records.UpdateMedicine(c.Request().Context(), id, m); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) DeleteMedicine(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if _, err := a.records.DeleteMedicine(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ============================================================================
// Posologies
// ============================================================================

func (a *API) ListPosologies(c echo.Context) error {
	posologies, err := a.records.ListPosologies(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posologies)
}

func (a *API) CreatePosology(c echo.Context) error {
	var p domain.Posology
	if err := bind(c, "create posology", &p); err != nil {
		return err
	}
	id, err := a.records.CreatePosology(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (a *API) UpdatePosology(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var p domain.Posology
	if err := bind(c, "update posology", &p); err != nil {
		return err
	}
	if _, err := a.records.UpdatePosology(c.Request().Context(), id, p); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) DeletePosology(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if _, err := a.records.DeletePosology(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ============================================================================
// Prescriptions
// ============================================================================

func (a *API) CreatePrescription(c echo.Context) error {
	var p domain.Prescription
	if err := bind(c, "create prescription", &p); err != nil {
		return err
	}
	id, err := a.records.CreatePrescription(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (a *API) GetPrescription(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := a.records.GetPrescriptionWithMedicines(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (a *API) ListPrescriptionMedicines(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	lines, err := a.records.GetPrescriptionMedicines(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lines)
}

// AddPrescriptionMedicine adds a line item; the prescription id comes from
// the path and overrides any id in the body
func (a *API) AddPrescriptionMedicine(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var pm domain.PrescriptionMedicine
	if err := bind(c, "add medicine to prescription", &pm); err != nil {
		return err
	}
	pm.PrescriptionID = id
	lineID, err := a.records.AddMedicineToPrescription(c.Request().Context(), pm)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: lineID})
}

// ============================================================================
// Catalog
// ============================================================================

func (a *API) ExportCatalog(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "yaml"
	}
	contentType := "application/x-yaml"
	if format == "json" {
		contentType = echo.MIMEApplicationJSON
	}
	// Render into memory first so an error can still produce a JSON body
	var buf bytes.Buffer
	if err := a.catalog.Export(c.Request().Context(), format, &buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=catalog."+format)
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

func (a *API) ImportCatalog(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "yaml"
	}
	result, err := a.catalog.Import(c.Request().Context(), format, c.Request().Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ============================================================================
// Helpers
// ============================================================================

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.KindInvalid, "parse id", "invalid id %q", c.Param("id"))
	}
	return id, nil
}

func bind(c echo.Context, op string, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return domain.E(domain.KindInvalid, op, err)
	}
	return nil
}
