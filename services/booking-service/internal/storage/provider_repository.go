package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/sessionbook/libs/db"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
)

const searchLimit = 50

// ProviderRepository reads provider, service and customer records. Those
// records are owned elsewhere; this service never writes them.
type ProviderRepository struct {
	db db.Querier
}

func NewProviderRepository(q db.Querier) *ProviderRepository {
	return &ProviderRepository{db: q}
}

// Search finds active providers whose name contains name (case-insensitive),
// optionally narrowed to one provider ID, each with its services.
func (r *ProviderRepository) Search(ctx context.Context, name, providerID string) ([]model.Provider, error) {
	if providerID != "" {
		if _, err := uuid.Parse(providerID); err != nil {
			return nil, nil
		}
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, user_id::text, provider_name, business_name, bio, provider_address, is_active
		FROM providers
		WHERE is_active
			AND ($1 = '' OR provider_name ILIKE '%' || $1 || '%')
			AND ($2 = '' OR id::text = $2)
		ORDER BY provider_name
		LIMIT $3
	`, name, providerID, searchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		providers []model.Provider
		ids       []string
	)
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProviderName, &p.BusinessName, &p.Bio, &p.ProviderAddress, &p.IsActive); err != nil {
			return nil, err
		}
		providers = append(providers, p)
		ids = append(ids, p.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(providers) == 0 {
		return nil, nil
	}

	services, err := r.servicesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		providers[i].Services = services[providers[i].ID]
	}
	return providers, nil
}

func (r *ProviderRepository) servicesFor(ctx context.Context, providerIDs []string) (map[string][]model.Service, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, provider_id::text, name, description, price::float8
		FROM services
		WHERE provider_id::text = ANY($1)
		ORDER BY name
	`, providerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.Service, len(providerIDs))
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.Price); err != nil {
			return nil, err
		}
		out[s.ProviderID] = append(out[s.ProviderID], s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Services lists the provider's services by name.
func (r *ProviderRepository) Services(ctx context.Context, providerID string) ([]model.Service, error) {
	if _, err := uuid.Parse(providerID); err != nil {
		return nil, nil
	}
	byProvider, err := r.servicesFor(ctx, []string{providerID})
	if err != nil {
		return nil, err
	}
	return byProvider[providerID], nil
}

// Service looks up one service of the provider.
func (r *ProviderRepository) Service(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	if _, err := uuid.Parse(serviceID); err != nil {
		return model.Service{}, ErrNotFound
	}
	var s model.Service
	err := r.db.QueryRow(ctx, `
		SELECT id::text, provider_id::text, name, description, price::float8
		FROM services
		WHERE id = $1 AND provider_id = $2
	`, serviceID, providerID).Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, ErrNotFound
	}
	return s, err
}

// ActiveProvider reports whether providerID names an active provider.
func (r *ProviderRepository) ActiveProvider(ctx context.Context, providerID string) (bool, error) {
	if _, err := uuid.Parse(providerID); err != nil {
		return false, nil
	}
	var active bool
	err := r.db.QueryRow(ctx, `SELECT is_active FROM providers WHERE id = $1`, providerID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}
