package database

import (
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

func SeedUsers(db *sqlx.DB) error {
	// Check if users already exist
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	driverPassword, err := bcrypt.GenerateFromPassword([]byte("driver123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []map[string]interface{}{
		{
			"id":       uuid.New().String(),
			"email":    "driver1@truckvoice.kr",
			"password": string(driverPassword),
			"nickname": "김기사",
			"role":     "driver",
		},
		{
			"id":       uuid.New().String(),
			"email":    "driver2@truckvoice.kr",
			"password": string(driverPassword),
			"nickname": "박기사",
			"role":     "driver",
		},
		{
			"id":       uuid.New().String(),
			"email":    "admin@truckvoice.kr",
			"password": string(adminPassword),
			"nickname": "관리자",
			"role":     "admin",
		},
	}

	for _, user := range users {
		query := `
			INSERT INTO users (id, email, password, nickname, role)
			VALUES (:id, :email, :password, :nickname, :role)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", user["email"], user["role"])
	}

	log.Println("✓ Successfully seeded test users")
	log.Println("  📧 Drivers: driver1@truckvoice.kr, driver2@truckvoice.kr / driver123")
	log.Println("  📧 Admin:   admin@truckvoice.kr / admin123")
	return nil
}
