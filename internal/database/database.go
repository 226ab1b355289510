package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 Database URL length: %d characters", len(dbURL))
	log.Printf("   📍 URL prefix: %s...", dbURL[:min(30, len(dbURL))])
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Printf("❌ sqlx.Connect() failed: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Printf("❌ Ping() failed: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	return db, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Create users table
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			nickname TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('driver', 'admin')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create favorite_drivers table (saved peers, bypass the distance gate)
		`CREATE TABLE IF NOT EXISTS favorite_drivers (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			driver_id TEXT NOT NULL,
			driver_nickname TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE (user_id, driver_id)
		)`,

		// Create driving_status table (exactly 1 row per driver, updated via UPSERT)
		// Duration columns hold accumulated whole segments only. The segment in
		// progress is reconstructed client-side from rest_start_time /
		// sleep_start_time / last_status_update.
		`CREATE TABLE IF NOT EXISTS driving_status (
			driver_id TEXT PRIMARY KEY,
			state TEXT NOT NULL CHECK(state IN ('driving', 'resting', 'sleeping', 'offline')),
			reachable BOOLEAN NOT NULL DEFAULT TRUE,
			driving_time_seconds BIGINT NOT NULL DEFAULT 0,
			rest_time_seconds BIGINT NOT NULL DEFAULT 0,
			sleep_time_seconds BIGINT NOT NULL DEFAULT 0,
			rest_start_time BIGINT,
			sleep_start_time BIGINT,
			last_status_update BIGINT NOT NULL,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Create daily_driving_records table (one row per driver per KST date)
		`CREATE TABLE IF NOT EXISTS daily_driving_records (
			id SERIAL PRIMARY KEY,
			driver_id TEXT NOT NULL,
			record_date TEXT NOT NULL,
			driving_time_seconds BIGINT NOT NULL DEFAULT 0,
			rest_time_seconds BIGINT NOT NULL DEFAULT 0,
			sleep_time_seconds BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE (driver_id, record_date)
		)`,

		// Create FCM tokens table
		`CREATE TABLE IF NOT EXISTS fcm_tokens (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			device_type TEXT NOT NULL CHECK(device_type IN ('ios', 'android')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_favorite_drivers_user_id ON favorite_drivers(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_records_driver_id ON daily_driving_records(driver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_records_date ON daily_driving_records(record_date)`,
		`CREATE INDEX IF NOT EXISTS idx_driving_status_state ON driving_status(state)`,
		`CREATE INDEX IF NOT EXISTS idx_fcm_tokens_user_id ON fcm_tokens(user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_fcm_tokens_token ON fcm_tokens(token)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}
