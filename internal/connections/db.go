package connections

import (
	"context"
	"database/sql"
	"log"
	"time"

	"hooked-notifications-worker/internal/config"
)

func InitDB(ctx context.Context) *sql.DB {
	// Connect SQL Server
	db, err := sql.Open("sqlserver", config.SqlConnString)
	if err != nil {
		log.Fatal("DB ERR:", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.DbMaxOpenConns)
	db.SetMaxIdleConns(config.DbMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.DbConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(config.DbConnMaxIdleTimeMinutes) * time.Minute)

	// simple connection check
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	log.Println("DB connected successfully")
	return db
}
