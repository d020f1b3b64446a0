package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
)

// CatalogRepo stores what businesses sell: services, their pricing options
// and the timeslots customers book.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// CreateService inserts a service owned by s.BusinessID.
func (r *CatalogRepo) CreateService(ctx context.Context, s *model.Service) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO services (business_id, name, description, created_at, updated_at) VALUES (?,?,?,?,?)`,
		s.BusinessID, s.Name, s.Description, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID, s.CreatedAt, s.UpdatedAt = uint64(id), now, now
	return nil
}

func (r *CatalogRepo) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	return getService(ctx, r.db, id)
}

func getService(ctx context.Context, q querier, id uint64) (*model.Service, error) {
	var s model.Service
	var desc sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, business_id, name, description, created_at, updated_at FROM services WHERE id=?`, id).
		Scan(&s.ID, &s.BusinessID, &s.Name, &desc, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "service %d", id)
	}
	s.Description = desc.String
	return &s, nil
}

// ListServices lists all services, or only one business's when businessID
// is non-zero.
func (r *CatalogRepo) ListServices(ctx context.Context, businessID uint64) ([]model.Service, error) {
	q := `SELECT id, business_id, name, description, created_at, updated_at FROM services`
	var args []any
	if businessID != 0 {
		q += ` WHERE business_id=?`
		args = append(args, businessID)
	}
	q += ` ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Service{}
	for rows.Next() {
		var s model.Service
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &desc, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Description = desc.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreatePricing adds a price option to a service.
func (r *CatalogRepo) CreatePricing(ctx context.Context, p *model.Pricing) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO pricing (service_id, price, currency, description, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		p.ServiceID, p.Price.StringFixed(2), p.Currency, p.Description, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt, p.UpdatedAt = uint64(id), now, now
	return nil
}

func (r *CatalogRepo) GetPricing(ctx context.Context, id uint64) (*model.Pricing, error) {
	return getPricing(ctx, r.db, id)
}

func getPricing(ctx context.Context, q querier, id uint64) (*model.Pricing, error) {
	var p model.Pricing
	err := q.QueryRowContext(ctx,
		`SELECT id, service_id, price, currency, description, created_at, updated_at FROM pricing WHERE id=?`, id).
		Scan(&p.ID, &p.ServiceID, &p.Price, &p.Currency, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "pricing %d", id)
	}
	return &p, nil
}

// ListPricing returns the price options of one service.
func (r *CatalogRepo) ListPricing(ctx context.Context, serviceID uint64) ([]model.Pricing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, service_id, price, currency, description, created_at, updated_at
		   FROM pricing WHERE service_id=? ORDER BY price, id`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Pricing{}
	for rows.Next() {
		var p model.Pricing
		if err := rows.Scan(&p.ID, &p.ServiceID, &p.Price, &p.Currency, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePrice changes a price that no payment has used yet.  Once a
// transaction references the pricing row its price is frozen and
// ErrConflict is returned.
func (r *CatalogRepo) UpdatePrice(ctx context.Context, id uint64, price model.Money, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pricing SET price=?, description=?, updated_at=?
		  WHERE id=? AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.pricing_id=?)`,
		price.StringFixed(2), description, time.Now().UTC(), id, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetPricing(ctx, id); err != nil {
		return err
	}
	return apperr.Conflict("pricing %d is referenced by a payment", id)
}

// CreateTimeslot publishes a bookable window.  A business cannot publish two
// slots starting at the same instant.
func (r *CatalogRepo) CreateTimeslot(ctx context.Context, t *model.Timeslot) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO timeslots (business_id, starts_at, ends_at, created_at) VALUES (?,?,?,?)`,
		t.BusinessID, t.StartsAt.UTC(), t.EndsAt.UTC(), now)
	if err != nil {
		return conflictOnDuplicate(err, "a timeslot starting at %s already exists", t.StartsAt.UTC().Format(time.RFC3339))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID, t.CreatedAt = uint64(id), now
	return nil
}

func getTimeslot(ctx context.Context, q querier, id uint64) (*model.Timeslot, error) {
	var t model.Timeslot
	err := q.QueryRowContext(ctx,
		`SELECT id, business_id, starts_at, ends_at, created_at FROM timeslots WHERE id=?`, id).
		Scan(&t.ID, &t.BusinessID, &t.StartsAt, &t.EndsAt, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "timeslot %d", id)
	}
	return &t, nil
}

// AvailableTimeslots lists a business's future slots in [from, to) that no
// active appointment holds.
func (r *CatalogRepo) AvailableTimeslots(ctx context.Context, businessID uint64, from, to time.Time) ([]model.Timeslot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.business_id, t.starts_at, t.ends_at, t.created_at
		   FROM timeslots t
		   LEFT JOIN appointments a ON a.active_timeslot_id = t.id
		  WHERE t.business_id=? AND t.starts_at >= ? AND t.starts_at < ? AND a.id IS NULL
		  ORDER BY t.starts_at`,
		businessID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Timeslot{}
	for rows.Next() {
		var t model.Timeslot
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.StartsAt, &t.EndsAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// BookingContextTx loads the timeslot, service and pricing a booking
// refers to.
func (r *CatalogRepo) BookingContextTx(ctx context.Context, tx *sql.Tx, timeslotID, serviceID, pricingID uint64) (*model.BookingContext, error) {
	slot, err := getTimeslot(ctx, tx, timeslotID)
	if err != nil {
		return nil, err
	}
	svc, err := getService(ctx, tx, serviceID)
	if err != nil {
		return nil, err
	}
	price, err := getPricing(ctx, tx, pricingID)
	if err != nil {
		return nil, err
	}
	return &model.BookingContext{Timeslot: *slot, Service: *svc, Pricing: *price}, nil
}
