package main

import (
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Get database connection string from environment
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("🔌 Connected to database")

	// Hash password for driver accounts (driver123)
	driverPassword, err := bcrypt.GenerateFromPassword([]byte("driver123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash driver password: %v", err)
	}

	users := []map[string]interface{}{
		{
			"id":       uuid.New().String(),
			"email":    "driver3@truckvoice.kr",
			"password": string(driverPassword),
			"nickname": "이기사",
			"role":     "driver",
		},
		{
			"id":       uuid.New().String(),
			"email":    "driver4@truckvoice.kr",
			"password": string(driverPassword),
			"nickname": "최기사",
			"role":     "driver",
		},
		{
			"id":       uuid.New().String(),
			"email":    "driver5@truckvoice.kr",
			"password": string(driverPassword),
			"nickname": "정기사",
			"role":     "driver",
		},
	}

	for _, user := range users {
		// Check if user already exists
		var exists bool
		err := db.Get(&exists, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", user["email"])
		if err != nil {
			log.Printf("❌ Error checking for user %s: %v", user["email"], err)
			continue
		}

		if exists {
			log.Printf("⚠️  User already exists: %s", user["email"])
			continue
		}

		// Insert new user
		query := `
			INSERT INTO users (id, email, password, nickname, role)
			VALUES (:id, :email, :password, :nickname, :role)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			log.Printf("❌ Failed to create user %s: %v", user["email"], err)
			continue
		}

		log.Printf("✅ Created %s user: %s", user["role"], user["email"])
	}

	log.Println("\n📧 Login credentials:")
	log.Println("  driver3@truckvoice.kr / driver123 (driver)")
	log.Println("  driver4@truckvoice.kr / driver123 (driver)")
	log.Println("  driver5@truckvoice.kr / driver123 (driver)")
}
