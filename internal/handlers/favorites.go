package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"truckvoice-backend/internal/middleware"
	"truckvoice-backend/internal/models"
	"truckvoice-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

// GetFavorites lists the authenticated driver's saved peers.
func GetFavorites(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		favorites := []models.FavoriteDriver{}
		err := db.Select(&favorites, `
			SELECT * FROM favorite_drivers
			WHERE user_id = $1
			ORDER BY created_at ASC
		`, claims.UserID)
		if err != nil {
			log.Printf("❌ Failed to fetch favorites for %s: %v", claims.UserID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch favorites")
			return
		}

		utils.RespondJSON(w, http.StatusOK, favorites)
	}
}

type AddFavoriteRequest struct {
	DriverID       string `json:"driver_id"`
	DriverNickname string `json:"driver_nickname"`
}

// AddFavorite saves a peer. Saving an already-saved peer refreshes the
// stored nickname instead of failing.
func AddFavorite(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req AddFavoriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.DriverID == "" {
			utils.RespondError(w, http.StatusBadRequest, "driver_id is required")
			return
		}
		if req.DriverID == claims.UserID {
			utils.RespondError(w, http.StatusBadRequest, "Cannot favorite yourself")
			return
		}

		_, err := db.Exec(`
			INSERT INTO favorite_drivers (user_id, driver_id, driver_nickname)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, driver_id) DO UPDATE SET
				driver_nickname = EXCLUDED.driver_nickname
		`, claims.UserID, req.DriverID, req.DriverNickname)
		if err != nil {
			log.Printf("❌ Failed to add favorite %s for %s: %v", req.DriverID, claims.UserID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to add favorite")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

// RemoveFavorite unsaves a peer. Removing a peer that was never saved is
// a no-op success.
func RemoveFavorite(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		driverID := chi.URLParam(r, "driverID")
		_, err := db.Exec(`
			DELETE FROM favorite_drivers WHERE user_id = $1 AND driver_id = $2
		`, claims.UserID, driverID)
		if err != nil {
			log.Printf("❌ Failed to remove favorite %s for %s: %v", driverID, claims.UserID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to remove favorite")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}
