package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTimingSQLite_Save_UpsertsSingleRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewTimingSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cover_timings")).
		WithArgs(
			1,
			int64(25000),
			int64(22000),
			int64(1500),
			int64(1200),
			int64(2000),
			int64(0),
			int64(150),
			sqlmock.AnyArg(), // zero UpdatedAt filled with now
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	timings := models.CoverTimings{
		TravelOpenMs:     25000,
		TravelCloseMs:    22000,
		TiltOpenMs:       1500,
		TiltCloseMs:      1200,
		TravelOverheadMs: 2000,
		MinMovementMs:    150,
	}
	if err := repo.Save(context.Background(), timings); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimingSQLite_Save_ExecErrorIsPropagated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewTimingSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cover_timings")).
		WillReturnError(errors.New("db down"))

	if err := repo.Save(context.Background(), models.CoverTimings{TravelOpenMs: 1}); err == nil {
		t.Fatalf("Save() expected error, got nil")
	}
}

func TestTimingSQLite_Load_NoRowMeansUnmeasured(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewTimingSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, travel_open_ms")).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	var zero models.CoverTimings
	if got != zero {
		t.Fatalf("Load() expected zero timings, got: %+v", got)
	}
}

func TestTimingSQLite_Load_HappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func(db *sql.DB) {
		err := db.Close()
		if err != nil {

		}
	}(db)

	repo := repository.NewTimingSQLite(db)

	cols := []string{"id", "travel_open_ms", "travel_close_ms", "tilt_open_ms", "tilt_close_ms",
		"travel_overhead_ms", "tilt_overhead_ms", "min_movement_ms", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(1, 12000, 11000, 1500, 1200, 2000, 300, 150, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, travel_open_ms")).
		WithArgs(1).
		WillReturnRows(rows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.TravelOpenMs != 12000 || got.TravelCloseMs != 11000 ||
		got.TiltOpenMs != 1500 || got.TiltCloseMs != 1200 ||
		got.TravelOverheadMs != 2000 || got.TiltOverheadMs != 300 ||
		got.MinMovementMs != 150 {
		t.Fatalf("Load() unexpected fields: %+v", got)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("Load() UpdatedAt not UTC: %v", got.UpdatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
