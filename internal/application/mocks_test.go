package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// --- Connector mocks ---

type mockConnector struct {
	vendor model.Vendor

	listSites   func(ctx context.Context) ([]model.Site, error)
	getDetails  func(ctx context.Context, id string) (model.SiteDetails, error)
	getOverview func(ctx context.Context, id string) (model.SiteOverview, error)
	getEnergy   func(ctx context.Context, id string, start, end time.Time) ([]model.EnergyReading, error)
	getDevices  func(ctx context.Context, id string) ([]model.Device, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockConnector) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockConnector) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockConnector) Vendor() model.Vendor { return m.vendor }

func (m *mockConnector) ListSites(ctx context.Context) ([]model.Site, error) {
	m.record("list")
	if m.listSites == nil {
		return nil, nil
	}
	return m.listSites(ctx)
}

func (m *mockConnector) GetSiteDetails(ctx context.Context, id string) (model.SiteDetails, error) {
	m.record("details:" + id)
	if m.getDetails == nil {
		return model.SiteDetails{}, driven.NewError(driven.KindNotSupported, m.vendor, "site details", errors.New("no details"))
	}
	return m.getDetails(ctx, id)
}

func (m *mockConnector) GetSiteOverview(ctx context.Context, id string) (model.SiteOverview, error) {
	m.record("overview:" + id)
	if m.getOverview == nil {
		return model.SiteOverview{}, nil
	}
	return m.getOverview(ctx, id)
}

func (m *mockConnector) GetSiteEnergy(ctx context.Context, id string, start, end time.Time) ([]model.EnergyReading, error) {
	m.record("energy:" + id)
	if m.getEnergy == nil {
		return nil, nil
	}
	return m.getEnergy(ctx, id, start, end)
}

func (m *mockConnector) GetDevices(ctx context.Context, id string) ([]model.Device, error) {
	m.record("devices:" + id)
	if m.getDevices == nil {
		return nil, nil
	}
	return m.getDevices(ctx, id)
}

func (m *mockConnector) RefreshToken(context.Context) error {
	return driven.NewError(driven.KindNotSupported, m.vendor, "refresh token", errors.New("not implemented"))
}

func (m *mockConnector) Usage() model.QuotaUsage { return model.QuotaUsage{Vendor: m.vendor} }

type mockFactory struct {
	connectors map[model.Vendor]*mockConnector
	newErr     map[model.Vendor]error
	built      int
}

func (f *mockFactory) New(cred model.Credential) (driven.Connector, error) {
	if err := f.newErr[cred.Vendor]; err != nil {
		return nil, err
	}
	c, ok := f.connectors[cred.Vendor]
	if !ok {
		return nil, driven.NewError(driven.KindValidation, cred.Vendor, "new connector", errors.New("unknown vendor"))
	}
	f.built++
	return c, nil
}

func (f *mockFactory) Usage() []model.QuotaUsage {
	usage := []model.QuotaUsage{}
	for _, v := range model.Vendors {
		if c, ok := f.connectors[v]; ok {
			usage = append(usage, model.QuotaUsage{Vendor: v, Count: len(c.Calls())})
		}
	}
	return usage
}

// --- In-memory stores ---

type memSiteStore struct {
	mu        sync.Mutex
	sites     map[string]model.Site
	upserts   int
	upsertErr func(site model.Site) error
}

func newMemSiteStore() *memSiteStore {
	return &memSiteStore{sites: map[string]model.Site{}}
}

func (s *memSiteStore) Upsert(_ context.Context, site model.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		if err := s.upsertErr(site); err != nil {
			return err
		}
	}
	if prev, ok := s.sites[site.ID]; ok && prev.LastUpdated.After(site.LastUpdated) {
		site.LastUpdated = prev.LastUpdated
	}
	s.sites[site.ID] = site
	s.upserts++
	return nil
}

func (s *memSiteStore) GetByID(_ context.Context, id string) (model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return model.Site{}, driven.ErrSiteNotFound
	}
	return site, nil
}

func (s *memSiteStore) ListByVendor(_ context.Context, vendor model.Vendor) ([]model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Site{}
	for _, site := range s.sites {
		if site.Vendor == vendor {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSiteStore) ListAll(_ context.Context) ([]model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Site{}
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSiteStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return driven.ErrSiteNotFound
	}
	delete(s.sites, id)
	return nil
}

type memDeviceStore struct {
	mu      sync.Mutex
	devices map[string][]model.Device
	err     error
}

func (s *memDeviceStore) UpsertForSite(_ context.Context, siteID string, devices []model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.devices == nil {
		s.devices = map[string][]model.Device{}
	}
	s.devices[siteID] = devices
	return nil
}

func (s *memDeviceStore) ListBySite(_ context.Context, siteID string) ([]model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[siteID], nil
}

type memEnergyStore struct {
	mu       sync.Mutex
	readings map[string][]model.EnergyReading
}

func (s *memEnergyStore) UpsertReadings(_ context.Context, siteID string, readings []model.EnergyReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readings == nil {
		s.readings = map[string][]model.EnergyReading{}
	}
	s.readings[siteID] = append(s.readings[siteID], readings...)
	return nil
}

func (s *memEnergyStore) ListBySite(_ context.Context, siteID string, _, _ time.Time) ([]model.EnergyReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readings[siteID], nil
}

type memLedgerStore struct {
	mu      sync.Mutex
	records map[model.FetchKey]model.FetchRecord

	// getErr is returned by every Get after the first getOK calls.
	getErr error
	getOK  int
	gets   int
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{records: map[model.FetchKey]model.FetchRecord{}}
}

func (s *memLedgerStore) Get(_ context.Context, key model.FetchKey) (*model.FetchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil && s.gets > s.getOK {
		return nil, s.getErr
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memLedgerStore) Upsert(_ context.Context, rec model.FetchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.FetchKey] = rec
	return nil
}

func (s *memLedgerStore) List(_ context.Context, vendor model.Vendor) ([]model.FetchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.FetchRecord{}
	for _, rec := range s.records {
		if vendor == "" || rec.Vendor == vendor {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memCredentialStore struct {
	creds   []model.Credential
	listErr error
}

func (s *memCredentialStore) Set(context.Context, model.Vendor, string) error { return nil }

func (s *memCredentialStore) Get(_ context.Context, vendor model.Vendor) (model.Credential, error) {
	for _, c := range s.creds {
		if c.Vendor == vendor {
			return c, nil
		}
	}
	return model.Credential{}, driven.ErrCredentialNotFound
}

func (s *memCredentialStore) List(context.Context) ([]model.Credential, error) {
	return s.creds, s.listErr
}

func (s *memCredentialStore) Delete(context.Context, model.Vendor) error { return nil }

type recordingObserver struct {
	mu      sync.Mutex
	fetches []model.FetchResult
	cycles  int
	quotas  []model.QuotaUsage
}

func (o *recordingObserver) ObserveFetch(r model.FetchResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches = append(o.fetches, r)
}

func (o *recordingObserver) ObserveCycle(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles++
}

func (o *recordingObserver) ObserveQuota(u model.QuotaUsage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotas = append(o.quotas, u)
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
