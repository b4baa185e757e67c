package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"boardsync-backend/internal/model"
)

// Deactivates boards whose meetings ended long ago. Run from cron; boards
// are never hard-deleted here.
func main() {
	maxAge := flag.Duration("max-age", 30*24*time.Hour, "deactivate boards not modified for this long")
	dryRun := flag.Bool("dry-run", false, "report without writing")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Database connection
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")

	cutoff := time.Now().Add(-*maxAge)

	var stale []model.Board
	if err := db.Where("is_active = ? AND last_modified < ?", true, cutoff).Find(&stale).Error; err != nil {
		log.Fatal("Failed to query boards:", err)
	}

	fmt.Printf("📊 Found %d stale boards (last modified before %s)\n", len(stale), cutoff.Format(time.RFC3339))

	if *dryRun {
		for _, b := range stale {
			fmt.Printf("  - %s (meeting %d, last modified %s)\n", b.BoardID, b.MeetingID, b.LastModified.Format(time.RFC3339))
		}
		fmt.Println("Dry run, nothing written")
		return
	}

	deactivated := 0
	for _, b := range stale {
		if err := db.Model(&model.Board{}).
			Where("board_id = ?", b.BoardID).
			Update("is_active", false).Error; err != nil {
			log.Printf("⚠️ Failed to deactivate %s: %v", b.BoardID, err)
			continue
		}
		deactivated++
	}

	fmt.Printf("✅ Deactivated %d boards\n", deactivated)
}
