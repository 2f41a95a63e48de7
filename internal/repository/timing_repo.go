package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
)

type TimingSQLite struct {
	db *sql.DB
}

func NewTimingSQLite(db *sql.DB) *TimingSQLite {
	return &TimingSQLite{db: db}
}

const (
	coverTimingsRowID = 1

	upsertTimingsSQL = `
		INSERT INTO cover_timings (id, travel_open_ms, travel_close_ms, tilt_open_ms,
			tilt_close_ms, travel_overhead_ms, tilt_overhead_ms, min_movement_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			travel_open_ms=excluded.travel_open_ms,
			travel_close_ms=excluded.travel_close_ms,
			tilt_open_ms=excluded.tilt_open_ms,
			tilt_close_ms=excluded.tilt_close_ms,
			travel_overhead_ms=excluded.travel_overhead_ms,
			tilt_overhead_ms=excluded.tilt_overhead_ms,
			min_movement_ms=excluded.min_movement_ms,
			updated_at=excluded.updated_at
	`

	selectTimingsSQL = `
		SELECT id, travel_open_ms, travel_close_ms, tilt_open_ms, tilt_close_ms,
			travel_overhead_ms, tilt_overhead_ms, min_movement_ms, updated_at
		FROM cover_timings WHERE id=?
	`
)

// Save upserts the single cover_timings row (id=1).
func (r *TimingSQLite) Save(ctx context.Context, t models.CoverTimings) error {
	tsUTC := t.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertTimingsSQL,
		coverTimingsRowID,
		t.TravelOpenMs,
		t.TravelCloseMs,
		t.TiltOpenMs,
		t.TiltCloseMs,
		t.TravelOverheadMs,
		t.TiltOverheadMs,
		t.MinMovementMs,
		tsUTC,
	)
	return err
}

// Load fetches the single cover_timings row (id=1). A missing row yields
// all-zero timings, meaning nothing was measured yet.
func (r *TimingSQLite) Load(ctx context.Context) (models.CoverTimings, error) {
	row := r.db.QueryRowContext(ctx, selectTimingsSQL, coverTimingsRowID)

	var t models.CoverTimings
	if err := row.Scan(
		&t.ID,
		&t.TravelOpenMs,
		&t.TravelCloseMs,
		&t.TiltOpenMs,
		&t.TiltCloseMs,
		&t.TravelOverheadMs,
		&t.TiltOverheadMs,
		&t.MinMovementMs,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CoverTimings{}, nil
		}
		return models.CoverTimings{}, err
	}
	t.UpdatedAt = t.UpdatedAt.UTC()

	return t, nil
}
