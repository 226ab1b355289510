package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"truckvoice-backend/internal/database"
	"truckvoice-backend/internal/models"
	"truckvoice-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

// recordCutoff returns the oldest KST record date inside a window of N
// days ending today. Gap days inside the window do not widen it.
func recordCutoff(now time.Time, days int) string {
	return database.RecordDate(now.AddDate(0, 0, -(days-1)).Unix())
}

// GetDailyRecords returns a driver's archived driver-days, newest first.
// ?days=N limits the window (default 30, max 365).
func GetDailyRecords(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverID")

		days := 30
		if v := r.URL.Query().Get("days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				utils.RespondError(w, http.StatusBadRequest, "Invalid days parameter")
				return
			}
			days = parsed
		}
		if days > 365 {
			days = 365
		}

		records := []models.DailyRecord{}
		err := db.Select(&records, `
			SELECT * FROM daily_driving_records
			WHERE driver_id = $1 AND record_date >= $2
			ORDER BY record_date DESC
		`, driverID, recordCutoff(time.Now(), days))
		if err != nil {
			log.Printf("❌ Failed to fetch daily records for %s: %v", driverID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch daily records")
			return
		}

		utils.RespondJSON(w, http.StatusOK, records)
	}
}

type UpsertDailyRecordRequest struct {
	RecordDate      string `json:"record_date"`
	DrivingTimeSecs int64  `json:"driving_time_seconds"`
	RestTimeSecs    int64  `json:"rest_time_seconds"`
	SleepTimeSecs   int64  `json:"sleep_time_seconds"`
}

// UpsertDailyRecord writes one driver-day. The engine calls this during
// rollover before resetting its live counters; a repeat for the same date
// overwrites rather than accumulates.
func UpsertDailyRecord(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverID")

		var req UpsertDailyRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.RecordDate == "" {
			utils.RespondError(w, http.StatusBadRequest, "record_date is required")
			return
		}

		now := time.Now().Unix()
		_, err := db.Exec(`
			INSERT INTO daily_driving_records
				(driver_id, record_date, driving_time_seconds, rest_time_seconds, sleep_time_seconds, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (driver_id, record_date) DO UPDATE SET
				driving_time_seconds = EXCLUDED.driving_time_seconds,
				rest_time_seconds = EXCLUDED.rest_time_seconds,
				sleep_time_seconds = EXCLUDED.sleep_time_seconds,
				updated_at = EXCLUDED.updated_at
		`, driverID, req.RecordDate,
			models.ClampSeconds(req.DrivingTimeSecs),
			models.ClampSeconds(req.RestTimeSecs),
			models.ClampSeconds(req.SleepTimeSecs), now)
		if err != nil {
			log.Printf("❌ Failed to upsert daily record for %s (%s): %v", driverID, req.RecordDate, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save daily record")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}
