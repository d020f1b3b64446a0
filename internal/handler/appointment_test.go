package handler

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/service"
)

type mockAppointments struct {
	BookFunc            func(ctx context.Context, req service.BookRequest) (*model.AppointmentDetail, error)
	GetFunc             func(ctx context.Context, viewer uint64, id string) (*model.AppointmentDetail, error)
	ListForCustomerFunc func(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error)
	ListForBusinessFunc func(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error)
	CancelFunc          func(ctx context.Context, userID uint64, id string) (*model.AppointmentDetail, error)
	DeleteFunc          func(ctx context.Context, userID uint64, id string) error
}

func (m *mockAppointments) Book(ctx context.Context, req service.BookRequest) (*model.AppointmentDetail, error) {
	return m.BookFunc(ctx, req)
}
func (m *mockAppointments) Get(ctx context.Context, viewer uint64, id string) (*model.AppointmentDetail, error) {
	return m.GetFunc(ctx, viewer, id)
}
func (m *mockAppointments) ListForCustomer(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error) {
	return m.ListForCustomerFunc(ctx, userID)
}
func (m *mockAppointments) ListForBusiness(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
	return m.ListForBusinessFunc(ctx, businessID, status)
}
func (m *mockAppointments) Cancel(ctx context.Context, userID uint64, id string) (*model.AppointmentDetail, error) {
	return m.CancelFunc(ctx, userID, id)
}
func (m *mockAppointments) Delete(ctx context.Context, userID uint64, id string) error {
	return m.DeleteFunc(ctx, userID, id)
}

func detail(id string, status model.AppointmentStatus) *model.AppointmentDetail {
	return &model.AppointmentDetail{Appointment: model.Appointment{ID: id, UserID: customer.id, Status: status}}
}

func TestAppointmentHandler_Book(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"Given a free slot, it books", `{"timeslot_id":20,"service_id":10,"pricing_id":11}`, nil, http.StatusCreated},
		{"Given a held slot, it conflicts", `{"timeslot_id":20,"service_id":10,"pricing_id":11}`, apperr.Conflict("timeslot 20 is already booked"), http.StatusConflict},
		{"Given a mismatched price, it rejects", `{"timeslot_id":20,"service_id":10,"pricing_id":11}`, apperr.Validation("pricing 11 does not belong to service 10"), http.StatusBadRequest},
		{"Given malformed JSON, it rejects", `{"timeslot_id":`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAppointmentHandler(&mockAppointments{
				BookFunc: func(_ context.Context, req service.BookRequest) (*model.AppointmentDetail, error) {
					want := service.BookRequest{UserID: customer.id, TimeslotID: 20, ServiceID: 10, PricingID: 11}
					if req != want {
						t.Errorf("request = %+v, want %+v", req, want)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return detail("a-1", model.AppointmentPending), nil
				},
			}, zap.NewNop())
			rec := serve(t, request{method: http.MethodPost, route: "/v1/appointments", target: "/v1/appointments", body: tt.body, who: customer}, h.Book)
			wantStatus(t, rec, tt.want)
			if tt.want == http.StatusCreated {
				wantBodyContains(t, rec, `"status":"PENDING"`)
			}
		})
	}
}

func TestAppointmentHandler_CancelAndDelete(t *testing.T) {
	h := NewAppointmentHandler(&mockAppointments{
		CancelFunc: func(_ context.Context, userID uint64, id string) (*model.AppointmentDetail, error) {
			switch id {
			case "mine":
				return detail(id, model.AppointmentCanceled), nil
			case "theirs":
				return nil, apperr.Forbidden("appointment theirs belongs to another user")
			}
			return nil, apperr.Conflict("appointment in status REFUNDED cannot be cancelled")
		},
		DeleteFunc: func(_ context.Context, userID uint64, id string) error {
			if id == "missing" {
				return apperr.NotFound("appointment missing")
			}
			return nil
		},
	}, zap.NewNop())

	tests := []struct {
		name   string
		method string
		route  string
		target string
		want   int
	}{
		{"Given my appointment, cancel succeeds", http.MethodPost, "/v1/appointments/:id/cancel", "/v1/appointments/mine/cancel", http.StatusOK},
		{"Given someone else's appointment, cancel is forbidden", http.MethodPost, "/v1/appointments/:id/cancel", "/v1/appointments/theirs/cancel", http.StatusForbidden},
		{"Given a refunded appointment, cancel conflicts", http.MethodPost, "/v1/appointments/:id/cancel", "/v1/appointments/done/cancel", http.StatusConflict},
		{"Given my appointment, delete returns no content", http.MethodDelete, "/v1/appointments/:id", "/v1/appointments/mine", http.StatusNoContent},
		{"Given an unknown appointment, delete reports 404", http.MethodDelete, "/v1/appointments/:id", "/v1/appointments/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf := h.Cancel
			if tt.method == http.MethodDelete {
				hf = h.Delete
			}
			rec := serve(t, request{method: tt.method, route: tt.route, target: tt.target, who: customer}, hf)
			wantStatus(t, rec, tt.want)
		})
	}
}

func TestAppointmentHandler_ListForBusiness(t *testing.T) {
	var gotStatus model.AppointmentStatus
	h := NewAppointmentHandler(&mockAppointments{
		ListForBusinessFunc: func(_ context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
			if businessID != business.id {
				t.Errorf("business = %d", businessID)
			}
			gotStatus = status
			if !status.Valid() && status != "" {
				return nil, apperr.Validation("unknown status %q", status)
			}
			return []model.AppointmentDetail{*detail("a-1", model.AppointmentConfirmed)}, nil
		},
	}, zap.NewNop())

	rec := serve(t, request{method: http.MethodGet, route: "/v1/business/appointments", target: "/v1/business/appointments?status=confirmed", who: business}, h.ListForBusiness)
	wantStatus(t, rec, http.StatusOK)
	if gotStatus != model.AppointmentConfirmed {
		t.Fatalf("status filter = %q, want CONFIRMED", gotStatus)
	}
	wantBodyContains(t, rec, `"items":[`)

	rec = serve(t, request{method: http.MethodGet, route: "/v1/business/appointments", target: "/v1/business/appointments?status=bogus", who: business}, h.ListForBusiness)
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestAppointmentHandler_Get(t *testing.T) {
	h := NewAppointmentHandler(&mockAppointments{
		GetFunc: func(_ context.Context, viewer uint64, id string) (*model.AppointmentDetail, error) {
			if viewer == business.id {
				return detail(id, model.AppointmentConfirmed), nil
			}
			return nil, apperr.Forbidden("appointment %s belongs to another user", id)
		},
	}, zap.NewNop())
	rec := serve(t, request{method: http.MethodGet, route: "/v1/appointments/:id", target: "/v1/appointments/a-1", who: business}, h.Get)
	wantStatus(t, rec, http.StatusOK)
	rec = serve(t, request{method: http.MethodGet, route: "/v1/appointments/:id", target: "/v1/appointments/a-1", who: caller{id: 9, role: model.RoleCustomer}}, h.Get)
	wantStatus(t, rec, http.StatusForbidden)
}
