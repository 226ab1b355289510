package database

import (
	"database/sql"
	"log"
	"time"

	"truckvoice-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// KST is the calendar zone for daily records. Driver-days roll over at
// Korean midnight no matter where the server runs.
var KST = time.FixedZone("KST", 9*60*60)

// RecordDate formats an epoch second as the KST calendar date it falls on.
func RecordDate(epoch int64) string {
	return time.Unix(epoch, 0).In(KST).Format("2006-01-02")
}

// ResetDailyStatus archives a driver's current counters into the daily
// record for recordDate and zeroes them, preserving the activity state.
// Archive and reset run in one transaction so a crash can never leave the
// day half rolled over; a zero-total day writes no record. Everything is
// an upsert, so redundant rollover triggers for the same date collapse
// into one effective reset.
func ResetDailyStatus(db *sqlx.DB, driverID, recordDate string, now int64) (bool, error) {
	tx, err := db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var status models.SessionStatus
	err = tx.Get(&status, "SELECT * FROM driving_status WHERE driver_id = $1 FOR UPDATE", driverID)
	if err == sql.ErrNoRows {
		// Nothing to archive, nothing to reset.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	archived := false
	if status.DrivingTimeSecs > 0 || status.RestTimeSecs > 0 || status.SleepTimeSecs > 0 {
		_, err = tx.Exec(`
			INSERT INTO daily_driving_records
				(driver_id, record_date, driving_time_seconds, rest_time_seconds, sleep_time_seconds, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (driver_id, record_date) DO UPDATE SET
				driving_time_seconds = EXCLUDED.driving_time_seconds,
				rest_time_seconds = EXCLUDED.rest_time_seconds,
				sleep_time_seconds = EXCLUDED.sleep_time_seconds,
				updated_at = EXCLUDED.updated_at
		`, driverID, recordDate,
			models.ClampSeconds(status.DrivingTimeSecs),
			models.ClampSeconds(status.RestTimeSecs),
			models.ClampSeconds(status.SleepTimeSecs), now)
		if err != nil {
			return false, err
		}
		archived = true
	}

	_, err = tx.Exec(`
		UPDATE driving_status SET
			driving_time_seconds = 0,
			rest_time_seconds = 0,
			sleep_time_seconds = 0,
			rest_start_time = CASE WHEN state = 'resting' THEN $2 ELSE NULL END,
			sleep_start_time = CASE WHEN state = 'sleeping' THEN $2 ELSE NULL END,
			last_status_update = $2,
			updated_at = $2
		WHERE driver_id = $1
	`, driverID, now)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return archived, nil
}

// RolloverIfStale archives yesterday's counters if the persisted snapshot
// predates today (KST). Run when a driver reconnects, mirroring the check
// the client engine performs on its own clock; both paths funnel into the
// same idempotent reset.
func RolloverIfStale(db *sqlx.DB, driverID string, now time.Time) error {
	var lastUpdate int64
	err := db.Get(&lastUpdate, "SELECT last_status_update FROM driving_status WHERE driver_id = $1", driverID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	staleDate := RecordDate(lastUpdate)
	if staleDate == RecordDate(now.Unix()) {
		return nil
	}

	archived, err := ResetDailyStatus(db, driverID, staleDate, now.Unix())
	if err != nil {
		return err
	}
	log.Printf("🌅 Reconnect rollover for %s: archived=%v date=%s", driverID, archived, staleDate)
	return nil
}
