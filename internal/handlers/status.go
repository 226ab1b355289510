package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"truckvoice-backend/internal/database"
	"truckvoice-backend/internal/models"
	"truckvoice-backend/internal/services"
	"truckvoice-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

// GetDrivingStatus returns the persisted accounting snapshot for a driver.
// A driver that has never flushed gets a zeroed offline snapshot instead
// of a 404 so clients can always start from a well-formed baseline.
func GetDrivingStatus(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverID")

		var status models.SessionStatus
		err := db.Get(&status, "SELECT * FROM driving_status WHERE driver_id = $1", driverID)
		if err == sql.ErrNoRows {
			now := time.Now().Unix()
			utils.RespondJSON(w, http.StatusOK, models.SessionStatus{
				DriverID:         driverID,
				State:            models.StateOffline,
				Reachable:        false,
				LastStatusUpdate: now,
				UpdatedAt:        now,
			})
			return
		}
		if err != nil {
			log.Printf("❌ Failed to fetch driving status for %s: %v", driverID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch driving status")
			return
		}

		utils.RespondJSON(w, http.StatusOK, status)
	}
}

// restAlertCycleSeconds is the server-side backstop boundary: a flush
// that carries driving time across a multiple of it triggers a push, so
// a driver whose app is backgrounded still hears about it.
const restAlertCycleSeconds int64 = 7200

// PutDrivingStatus upserts the full snapshot for a driver. The client's
// engine is the source of truth for the counters; the server only
// validates the state value and clamps the durations.
func PutDrivingStatus(db *sqlx.DB, fcm *services.FCMService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverID")

		var req models.SessionStatus
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if !req.State.Valid() {
			utils.RespondError(w, http.StatusBadRequest, "Invalid state: "+string(req.State))
			return
		}

		var prevDriving int64
		if err := db.Get(&prevDriving,
			"SELECT driving_time_seconds FROM driving_status WHERE driver_id = $1", driverID); err != nil {
			prevDriving = 0
		}

		req.DriverID = driverID
		req.DrivingTimeSecs = models.ClampSeconds(req.DrivingTimeSecs)
		req.RestTimeSecs = models.ClampSeconds(req.RestTimeSecs)
		req.SleepTimeSecs = models.ClampSeconds(req.SleepTimeSecs)
		req.UpdatedAt = time.Now().Unix()

		query := `
			INSERT INTO driving_status
				(driver_id, state, reachable, driving_time_seconds, rest_time_seconds,
				 sleep_time_seconds, rest_start_time, sleep_start_time, last_status_update, updated_at)
			VALUES
				(:driver_id, :state, :reachable, :driving_time_seconds, :rest_time_seconds,
				 :sleep_time_seconds, :rest_start_time, :sleep_start_time, :last_status_update, :updated_at)
			ON CONFLICT (driver_id) DO UPDATE SET
				state = EXCLUDED.state,
				reachable = EXCLUDED.reachable,
				driving_time_seconds = EXCLUDED.driving_time_seconds,
				rest_time_seconds = EXCLUDED.rest_time_seconds,
				sleep_time_seconds = EXCLUDED.sleep_time_seconds,
				rest_start_time = EXCLUDED.rest_start_time,
				sleep_start_time = EXCLUDED.sleep_start_time,
				last_status_update = EXCLUDED.last_status_update,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := db.NamedExec(query, req); err != nil {
			log.Printf("❌ Failed to upsert driving status for %s: %v", driverID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save driving status")
			return
		}

		if fcm != nil && req.State == models.StateDriving &&
			req.DrivingTimeSecs/restAlertCycleSeconds > prevDriving/restAlertCycleSeconds {
			hours := req.DrivingTimeSecs / 3600
			go func() {
				body := fmt.Sprintf("운전 시간이 %d시간을 넘었습니다. 휴식을 취해주세요.", hours)
				if err := fcm.SendRestAlertNotification(db, driverID, body); err != nil {
					log.Printf("⚠️ Rest alert push failed for %s: %v", driverID, err)
				}
			}()
		}

		utils.RespondJSON(w, http.StatusOK, req)
	}
}

type BatchStatusRequest struct {
	DriverIDs []string `json:"driver_ids"`
}

// BatchDrivingStatus fetches snapshots for a set of drivers in one call.
// Used to decorate peer lists with each peer's current state.
func BatchDrivingStatus(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		result := map[string]models.SessionStatus{}
		if len(req.DriverIDs) == 0 {
			utils.RespondJSON(w, http.StatusOK, result)
			return
		}

		query, args, err := sqlx.In("SELECT * FROM driving_status WHERE driver_id IN (?)", req.DriverIDs)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid driver id list")
			return
		}

		var statuses []models.SessionStatus
		if err := db.Select(&statuses, db.Rebind(query), args...); err != nil {
			log.Printf("❌ Failed to fetch batch driving status: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch driving status")
			return
		}

		for _, s := range statuses {
			result[s.DriverID] = s
		}

		utils.RespondJSON(w, http.StatusOK, result)
	}
}

type ResetStatusRequest struct {
	RecordDate string `json:"record_date"`
}

// ResetDrivingStatus archives the current counters into the daily record
// for the given date and zeroes them, preserving the driver's activity
// state. The archive and the reset run in one transaction so a crash can
// never leave the day half rolled over. A zero-total day writes no record.
// The whole operation is an upsert, so redundant rollover triggers for
// the same date collapse into one effective reset.
func ResetDrivingStatus(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverID")

		var req ResetStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.RecordDate == "" {
			utils.RespondError(w, http.StatusBadRequest, "record_date is required")
			return
		}

		archived, err := database.ResetDailyStatus(db, driverID, req.RecordDate, time.Now().Unix())
		if err != nil {
			log.Printf("❌ Failed to reset driving status for %s: %v", driverID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to reset driving status")
			return
		}

		log.Printf("🌅 Daily rollover for %s: archived=%v date=%s", driverID, archived, req.RecordDate)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "archived": archived})
	}
}
