package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	coverStateRowID = 1

	upsertStateSQL = `
		INSERT INTO cover_state (id, position, tilt, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position=excluded.position,
			tilt=excluded.tilt,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, position, tilt, updated_at
		FROM cover_state WHERE id=?
	`
)

// positionToNull maps the unknown sentinel to SQL NULL.
func positionToNull(p int) sql.NullInt64 {
	if p == models.PositionUnknown {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(p), Valid: true}
}

// nullToPosition maps SQL NULL back to the unknown sentinel.
func nullToPosition(n sql.NullInt64) int {
	if !n.Valid {
		return models.PositionUnknown
	}
	return int(n.Int64)
}

// Save upserts the single cover_state row (id=1). Only the positions are
// persisted; runtime flags are recomputed after restart.
func (r *StateSQLite) Save(ctx context.Context, state models.CoverState) error {
	tsUTC := state.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		coverStateRowID,
		positionToNull(state.Position),
		positionToNull(state.Tilt),
		tsUTC,
	)
	return err
}

// Load fetches the single cover_state row (id=1). A missing row yields a
// state with both positions unknown.
func (r *StateSQLite) Load(ctx context.Context) (models.CoverState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, coverStateRowID)

	var (
		s        models.CoverState
		position sql.NullInt64
		tilt     sql.NullInt64
	)
	if err := row.Scan(&s.ID, &position, &tilt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CoverState{Position: models.PositionUnknown, Tilt: models.PositionUnknown}, nil
		}
		return models.CoverState{}, err
	}
	s.Position = nullToPosition(position)
	s.Tilt = nullToPosition(tilt)
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}
