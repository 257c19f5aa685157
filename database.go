package main

import (
	"log"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	path := os.Getenv("DB_PATH")
	if path == "" {
		path = "events.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}

	DB = db

	// Migrate all models
	err = DB.AutoMigrate(&User{}, &Event{}, &Registration{})
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database connected and migrated successfully")
}
