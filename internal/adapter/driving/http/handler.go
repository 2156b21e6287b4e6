package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/sungazer/internal/application"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// defaultEnergyWindow is used by the energy endpoint when no range is given.
const defaultEnergyWindow = 30 * 24 * time.Hour

// CycleTrigger starts polling cycles and reports the last one.
type CycleTrigger interface {
	TryStart(trigger model.Trigger) error
	Last() (model.CycleSummary, bool)
	Running() bool
}

// ManualFetch starts on-demand fetches for one vendor or one site.
type ManualFetch interface {
	FetchVendor(ctx context.Context, vendor model.Vendor) error
	RefreshSite(ctx context.Context, siteID string) error
}

// QuotaReporter reports per-vendor request counts.
type QuotaReporter interface {
	Usage() []model.QuotaUsage
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	sites   driven.SiteStore
	devices driven.DeviceStore
	energy  driven.EnergyStore
	ledger  driven.FetchLedgerStore
	cycles  CycleTrigger
	manual  ManualFetch
	quota   QuotaReporter
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	sites driven.SiteStore,
	devices driven.DeviceStore,
	energy driven.EnergyStore,
	ledger driven.FetchLedgerStore,
	cycles CycleTrigger,
	manual ManualFetch,
	quota QuotaReporter,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sites:   sites,
		devices: devices,
		energy:  energy,
		ledger:  ledger,
		cycles:  cycles,
		manual:  manual,
		quota:   quota,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. metrics, when non-nil, is served at
// /metrics.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/fetch", h.StartFetch)
	mux.HandleFunc("GET /api/v1/fetch/last", h.LastFetch)
	mux.HandleFunc("POST /api/v1/fetch/{vendor}", h.FetchVendor)
	mux.HandleFunc("GET /api/v1/fetch-ledger", h.ListFetchLedger)
	mux.HandleFunc("GET /api/v1/sites", h.ListSites)
	mux.HandleFunc("GET /api/v1/sites/{id}", h.GetSite)
	mux.HandleFunc("GET /api/v1/sites/{id}/devices", h.ListSiteDevices)
	mux.HandleFunc("GET /api/v1/sites/{id}/energy", h.ListSiteEnergy)
	mux.HandleFunc("POST /api/v1/sites/{id}/refresh", h.RefreshSite)
	mux.HandleFunc("GET /api/v1/quota", h.Quota)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Time:         time.Now().UTC().Format(time.RFC3339),
		CycleRunning: h.cycles != nil && h.cycles.Running(),
	})
}

// StartFetch begins a manual polling cycle in the background. It answers 409
// when a cycle is already running.
func (h *Handler) StartFetch(w http.ResponseWriter, _ *http.Request) {
	if h.cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	if err := h.cycles.TryStart(model.TriggerManual); err != nil {
		if errors.Is(err, application.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start fetch cycle", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, FetchStartedResponse{Cycle: "started"})
}

// FetchVendor starts a background refresh of one vendor's site listing. It
// answers 409 while a cycle or another on-demand fetch is running.
func (h *Handler) FetchVendor(w http.ResponseWriter, r *http.Request) {
	if h.manual == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	vendor, err := model.ParseVendor(r.PathValue("vendor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manual.FetchVendor(r.Context(), vendor); err != nil {
		h.writeManualError(w, err, "vendor", vendor)
		return
	}

	writeJSON(w, http.StatusAccepted, ManualFetchResponse{Status: "started", Vendor: string(vendor)})
}

// RefreshSite starts a background refresh of one stored site. It answers 409
// while a cycle or another on-demand fetch is running.
func (h *Handler) RefreshSite(w http.ResponseWriter, r *http.Request) {
	if h.manual == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	id := r.PathValue("id")
	if err := h.manual.RefreshSite(r.Context(), id); err != nil {
		h.writeManualError(w, err, "site_id", id)
		return
	}

	writeJSON(w, http.StatusAccepted, ManualFetchResponse{Status: "started", SiteID: id})
}

func (h *Handler) writeManualError(w http.ResponseWriter, err error, attr string, value any) {
	switch {
	case errors.Is(err, application.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, application.ErrNoCredential):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("failed to start on-demand fetch", attr, value, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// LastFetch returns the summary of the most recent finished cycle.
func (h *Handler) LastFetch(w http.ResponseWriter, _ *http.Request) {
	if h.cycles == nil {
		writeError(w, http.StatusNotFound, "no fetch cycle has completed")
		return
	}
	summary, ok := h.cycles.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "no fetch cycle has completed")
		return
	}

	writeJSON(w, http.StatusOK, ToCycleSummaryResponse(summary))
}

// ListFetchLedger returns fetch ledger records, optionally for one vendor.
func (h *Handler) ListFetchLedger(w http.ResponseWriter, r *http.Request) {
	vendor, ok := vendorParam(w, r)
	if !ok {
		return
	}

	records, err := h.ledger.List(r.Context(), vendor)
	if err != nil {
		h.logger.Error("failed to list fetch ledger", "vendor", vendor, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]FetchRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toFetchRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSites returns stored sites, optionally for one vendor.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	vendor, ok := vendorParam(w, r)
	if !ok {
		return
	}

	var (
		sites []model.Site
		err   error
	)
	if vendor == "" {
		sites, err = h.sites.ListAll(r.Context())
	} else {
		sites, err = h.sites.ListByVendor(r.Context(), vendor)
	}
	if err != nil {
		h.logger.Error("failed to list sites", "vendor", vendor, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]SiteResponse, 0, len(sites))
	for _, s := range sites {
		resp = append(resp, toSiteResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSite returns a single site by its canonical ID.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toSiteResponse(site))
}

// ListSiteDevices returns the devices of one site.
func (h *Handler) ListSiteDevices(w http.ResponseWriter, r *http.Request) {
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	devices, err := h.devices.ListBySite(r.Context(), site.ID)
	if err != nil {
		h.logger.Error("failed to list devices", "site_id", site.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, toDeviceResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSiteEnergy returns a site's energy readings between the from and to
// dates (YYYY-MM-DD, to exclusive). The default window is the last 30 days.
func (h *Handler) ListSiteEnergy(w http.ResponseWriter, r *http.Request) {
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.Add(-defaultEnergyWindow)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date: expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date: expected YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	readings, err := h.energy.ListBySite(r.Context(), site.ID, from, to)
	if err != nil {
		h.logger.Error("failed to list energy readings", "site_id", site.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EnergyReadingResponse, 0, len(readings))
	for _, reading := range readings {
		resp = append(resp, EnergyReadingResponse{
			Timestamp: formatTime(reading.Timestamp),
			EnergyKWh: reading.EnergyKWh,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Quota returns each vendor's request count against its daily quota.
func (h *Handler) Quota(w http.ResponseWriter, _ *http.Request) {
	resp := []QuotaResponse{}
	if h.quota != nil {
		for _, q := range h.quota.Usage() {
			resp = append(resp, toQuotaResponse(q))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// loadSite resolves the {id} path value, writing 404 or 500 on failure.
func (h *Handler) loadSite(w http.ResponseWriter, r *http.Request) (model.Site, bool) {
	id := r.PathValue("id")

	site, err := h.sites.GetByID(r.Context(), id)
	if errors.Is(err, driven.ErrSiteNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return model.Site{}, false
	}
	if err != nil {
		h.logger.Error("failed to get site", "site_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return model.Site{}, false
	}

	return site, true
}

// vendorParam parses the optional vendor query parameter, writing 400 for an
// unknown vendor.
func vendorParam(w http.ResponseWriter, r *http.Request) (model.Vendor, bool) {
	raw := r.URL.Query().Get("vendor")
	if raw == "" {
		return "", true
	}
	vendor, err := model.ParseVendor(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return vendor, true
}
