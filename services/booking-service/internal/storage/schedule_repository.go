package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/sessionbook/libs/db"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/outbox"
)

type ScheduleRepository struct {
	db     db.Beginner
	outbox *outbox.Repository
	now    func() time.Time
}

func NewScheduleRepository(pool db.Beginner, ob *outbox.Repository) *ScheduleRepository {
	return &ScheduleRepository{db: pool, outbox: ob, now: time.Now}
}

// Windows returns the provider's weekly windows ordered by weekday and start.
func (r *ScheduleRepository) Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	return loadWindows(ctx, r.db, providerID)
}

// Replace swaps the provider's whole schedule in one transaction and records
// a provider.schedule.replaced.v1 event. Callers validate windows first.
func (r *ScheduleRepository) Replace(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error {
	evt, err := outbox.ScheduleReplacedEvent(providerID, windows, r.now())
	if err != nil {
		return err
	}
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		for _, w := range windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (provider_id, day_of_week, start_minute, end_minute, session_duration)
				VALUES ($1, $2, $3, $4, $5)
			`, providerID, w.DayOfWeek, w.StartMinute, w.EndMinute, w.SessionDuration); err != nil {
				return fmt.Errorf("insert window: %w", err)
			}
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

func loadWindows(ctx context.Context, q db.Querier, providerID string) ([]model.AvailabilityWindow, error) {
	rows, err := q.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute, session_duration
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY day_of_week, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		if err := rows.Scan(&w.DayOfWeek, &w.StartMinute, &w.EndMinute, &w.SessionDuration); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}
