package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
)

// memCatalog is an in-memory CatalogStore.
type memCatalog struct {
	services map[uint64]*model.Service
	pricing  map[uint64]*model.Pricing
	frozen   map[uint64]bool // pricing ids referenced by a payment
	slots    []model.Timeslot
	window   [2]time.Time
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		services: map[uint64]*model.Service{10: {ID: 10, BusinessID: business.id, Name: "Haircut"}},
		pricing:  map[uint64]*model.Pricing{11: {ID: 11, ServiceID: 10, Price: model.Money{}, Currency: "GHS"}},
		frozen:   map[uint64]bool{},
	}
}

func (m *memCatalog) CreateService(_ context.Context, s *model.Service) error {
	s.ID = uint64(len(m.services) + 100)
	m.services[s.ID] = s
	return nil
}
func (m *memCatalog) GetService(_ context.Context, id uint64) (*model.Service, error) {
	s, ok := m.services[id]
	if !ok {
		return nil, apperr.NotFound("service %d", id)
	}
	return s, nil
}
func (m *memCatalog) ListServices(_ context.Context, businessID uint64) ([]model.Service, error) {
	out := []model.Service{}
	for _, s := range m.services {
		if businessID == 0 || s.BusinessID == businessID {
			out = append(out, *s)
		}
	}
	return out, nil
}
func (m *memCatalog) CreatePricing(_ context.Context, p *model.Pricing) error {
	p.ID = uint64(len(m.pricing) + 100)
	m.pricing[p.ID] = p
	return nil
}
func (m *memCatalog) GetPricing(_ context.Context, id uint64) (*model.Pricing, error) {
	p, ok := m.pricing[id]
	if !ok {
		return nil, apperr.NotFound("pricing %d", id)
	}
	cp := *p
	return &cp, nil
}
func (m *memCatalog) ListPricing(_ context.Context, serviceID uint64) ([]model.Pricing, error) {
	out := []model.Pricing{}
	for _, p := range m.pricing {
		if p.ServiceID == serviceID {
			out = append(out, *p)
		}
	}
	return out, nil
}
func (m *memCatalog) UpdatePrice(_ context.Context, id uint64, price model.Money, description string) error {
	if m.frozen[id] {
		return apperr.Conflict("pricing %d is referenced by a payment", id)
	}
	m.pricing[id].Price = price
	m.pricing[id].Description = description
	return nil
}
func (m *memCatalog) CreateTimeslot(_ context.Context, t *model.Timeslot) error {
	for _, s := range m.slots {
		if s.BusinessID == t.BusinessID && s.StartsAt.Equal(t.StartsAt) {
			return apperr.Conflict("a timeslot starting at %s already exists", t.StartsAt)
		}
	}
	t.ID = uint64(len(m.slots) + 1)
	m.slots = append(m.slots, *t)
	return nil
}
func (m *memCatalog) AvailableTimeslots(_ context.Context, businessID uint64, from, to time.Time) ([]model.Timeslot, error) {
	m.window = [2]time.Time{from, to}
	return m.slots, nil
}

var catalogNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newCatalogHandler(repo *memCatalog) *CatalogHandler {
	h := NewCatalogHandler(repo, "GHS", zap.NewNop())
	h.now = func() time.Time { return catalogNow }
	return h
}

func TestCatalogHandler_CreatePricing(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		who    caller
		want   int
	}{
		{"Given my service and a valid price, it creates", "/v1/services/10/pricing", `{"price":"120.50"}`, business, http.StatusCreated},
		{"Given a numeric price, it creates", "/v1/services/10/pricing", `{"price":80,"currency":"ngn"}`, business, http.StatusCreated},
		{"Given a zero price, it rejects", "/v1/services/10/pricing", `{"price":"0"}`, business, http.StatusBadRequest},
		{"Given three decimals, it rejects", "/v1/services/10/pricing", `{"price":"1.005"}`, business, http.StatusBadRequest},
		{"Given no price, it rejects", "/v1/services/10/pricing", `{}`, business, http.StatusBadRequest},
		{"Given another business's service, it forbids", "/v1/services/10/pricing", `{"price":"10"}`, caller{id: 77, role: model.RoleBusiness}, http.StatusForbidden},
		{"Given an unknown service, it reports 404", "/v1/services/99/pricing", `{"price":"10"}`, business, http.StatusNotFound},
		{"Given a non numeric id, it rejects", "/v1/services/abc/pricing", `{"price":"10"}`, business, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCatalogHandler(newMemCatalog())
			rec := serve(t, request{method: http.MethodPost, route: "/v1/services/:id/pricing", target: tt.target, body: tt.body, who: tt.who}, h.CreatePricing)
			wantStatus(t, rec, tt.want)
		})
	}

	t.Run("Given no currency, it uses the default", func(t *testing.T) {
		repo := newMemCatalog()
		h := newCatalogHandler(repo)
		rec := serve(t, request{method: http.MethodPost, route: "/v1/services/:id/pricing", target: "/v1/services/10/pricing", body: `{"price":"50"}`, who: business}, h.CreatePricing)
		wantStatus(t, rec, http.StatusCreated)
		wantBodyContains(t, rec, `"currency":"GHS"`)
	})
}

func TestCatalogHandler_UpdatePricing(t *testing.T) {
	repo := newMemCatalog()
	h := newCatalogHandler(repo)

	rec := serve(t, request{method: http.MethodPatch, route: "/v1/pricing/:id", target: "/v1/pricing/11", body: `{"price":"60.00","description":"long"}`, who: business}, h.UpdatePricing)
	wantStatus(t, rec, http.StatusOK)
	if got := repo.pricing[11].Price.StringFixed(2); got != "60.00" {
		t.Fatalf("price = %s, want 60.00", got)
	}

	repo.frozen[11] = true
	rec = serve(t, request{method: http.MethodPatch, route: "/v1/pricing/:id", target: "/v1/pricing/11", body: `{"price":"70.00"}`, who: business}, h.UpdatePricing)
	wantStatus(t, rec, http.StatusConflict)
	if got := repo.pricing[11].Price.StringFixed(2); got != "60.00" {
		t.Fatalf("frozen price changed to %s", got)
	}
}

func TestCatalogHandler_CreateTimeslot(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"Given a future window, it creates", `{"starts_at":"2026-03-02T10:00:00Z","ends_at":"2026-03-02T11:00:00Z"}`, http.StatusCreated},
		{"Given a past start, it rejects", `{"starts_at":"2026-02-28T10:00:00Z","ends_at":"2026-02-28T11:00:00Z"}`, http.StatusBadRequest},
		{"Given an inverted window, it rejects", `{"starts_at":"2026-03-02T11:00:00Z","ends_at":"2026-03-02T10:00:00Z"}`, http.StatusBadRequest},
		{"Given no times, it rejects", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCatalogHandler(newMemCatalog())
			rec := serve(t, request{method: http.MethodPost, route: "/v1/timeslots", target: "/v1/timeslots", body: tt.body, who: business}, h.CreateTimeslot)
			wantStatus(t, rec, tt.want)
		})
	}

	t.Run("Given the same start twice, the second conflicts", func(t *testing.T) {
		h := newCatalogHandler(newMemCatalog())
		body := `{"starts_at":"2026-03-02T10:00:00Z","ends_at":"2026-03-02T11:00:00Z"}`
		wantStatus(t, serve(t, request{method: http.MethodPost, route: "/v1/timeslots", target: "/v1/timeslots", body: body, who: business}, h.CreateTimeslot), http.StatusCreated)
		wantStatus(t, serve(t, request{method: http.MethodPost, route: "/v1/timeslots", target: "/v1/timeslots", body: body, who: business}, h.CreateTimeslot), http.StatusConflict)
	})
}

func TestCatalogHandler_AvailableTimeslots(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		want     int
		wantFrom time.Time
		wantTo   time.Time
	}{
		{"Given no bounds, it lists two weeks from now", "", http.StatusOK, catalogNow, catalogNow.Add(defaultWindow)},
		{"Given a past from, it clamps to now", "?from=2026-01-01T00:00:00Z&to=2026-03-05T00:00:00Z", http.StatusOK, catalogNow, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"Given a window over 62 days, it rejects", "?to=2026-06-01T00:00:00Z", http.StatusBadRequest, time.Time{}, time.Time{}},
		{"Given a malformed bound, it rejects", "?from=tomorrow", http.StatusBadRequest, time.Time{}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemCatalog()
			h := newCatalogHandler(repo)
			rec := serve(t, request{method: http.MethodGet, route: "/v1/businesses/:id/timeslots", target: "/v1/businesses/2/timeslots" + tt.query}, h.AvailableTimeslots)
			wantStatus(t, rec, tt.want)
			if tt.want != http.StatusOK {
				return
			}
			if !repo.window[0].Equal(tt.wantFrom) || !repo.window[1].Equal(tt.wantTo) {
				t.Fatalf("window = %v, want [%v %v]", repo.window, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestCatalogHandler_PublicReads(t *testing.T) {
	h := newCatalogHandler(newMemCatalog())
	wantStatus(t, serve(t, request{method: http.MethodGet, route: "/v1/services", target: "/v1/services?business_id=2"}, h.ListServices), http.StatusOK)
	wantStatus(t, serve(t, request{method: http.MethodGet, route: "/v1/services", target: "/v1/services?business_id=x"}, h.ListServices), http.StatusBadRequest)
	wantStatus(t, serve(t, request{method: http.MethodGet, route: "/v1/services/:id", target: "/v1/services/10"}, h.GetService), http.StatusOK)
	wantStatus(t, serve(t, request{method: http.MethodGet, route: "/v1/services/:id/pricing", target: "/v1/services/99/pricing"}, h.ListPricing), http.StatusNotFound)
}
