package config

import (
	"fmt"

	"github.com/lib/pq"
	logrus "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"yenko/internal/models"
)

var (
	// DB is the globally accessible database handle
	DB *gorm.DB
)

// InitDB opens the Postgres connection described by the environment,
// migrates the schema and stores the handle in DB.
func InitDB() error {
	dsn, err := databaseDSN()
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return err
	}

	DB = db
	logrus.Info("database connected and migrated")
	return nil
}

// AutoMigrate creates or updates every table the API uses.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Driver{},
		&models.Passenger{},
		&models.DriverRoute{},
		&models.Ride{},
		&models.Payment{},
		&models.Rating{},
		&models.WaitlistEntry{},
		&models.OTPCode{},
		&models.LocationHistory{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// databaseDSN prefers a DATABASE_URL (as handed out by Supabase) and falls back
// to the discrete DB_* variables.
func databaseDSN() (string, error) {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		dsn, err := pq.ParseURL(url)
		if err != nil {
			return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		return dsn, nil
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "password")
	dbname := getEnv("DB_NAME", "yenko")
	sslmode := getEnv("DB_SSLMODE", "disable")
	timezone := getEnv("DB_TIMEZONE", "UTC")

	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		host, user, password, dbname, port, sslmode, timezone,
	), nil
}

// GetDB returns the initialized DB handle
func GetDB() *gorm.DB {
	return DB
}
