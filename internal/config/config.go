package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"beerlab/internal/models"
)

type Config struct {
	PORT               string
	DB_HOST            string
	DB_PORT            string
	DB_USER            string
	DB_PASSWORD        string
	DB_NAME            string
	ES_URL             string
	ES_USER            string
	ES_PASSWORD        string
	JWT_SECRET         string
	KAFKA_ADDRESS      string
	LOG_LEVEL          string
	SCHEDULER_INTERVAL time.Duration
	IMAGE_STORE        string
	IMAGE_DIR          string
	S3_BUCKET          string
	AWS_REGION         string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		PORT:               getEnv("PORT", "8080"),
		DB_HOST:            os.Getenv("DB_HOST"),
		DB_PORT:            os.Getenv("DB_PORT"),
		DB_USER:            os.Getenv("DB_USER"),
		DB_PASSWORD:        os.Getenv("DB_PASSWORD"),
		DB_NAME:            os.Getenv("DB_NAME"),
		ES_URL:             os.Getenv("ES_URL"),
		ES_USER:            os.Getenv("ES_USER"),
		ES_PASSWORD:        os.Getenv("ES_PASSWORD"),
		JWT_SECRET:         os.Getenv("JWT_SECRET"),
		KAFKA_ADDRESS:      os.Getenv("KAFKA_ADDRESS"),
		LOG_LEVEL:          getEnv("LOG_LEVEL", "info"),
		SCHEDULER_INTERVAL: getEnvSeconds("SCHEDULER_INTERVAL", 60),
		IMAGE_STORE:        getEnv("IMAGE_STORE", "local"),
		IMAGE_DIR:          getEnv("IMAGE_DIR", "./images"),
		S3_BUCKET:          os.Getenv("S3_BUCKET"),
		AWS_REGION:         os.Getenv("AWS_REGION"),
	}

	return config, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvSeconds(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

func InitDB(configuration *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		configuration.DB_USER,
		configuration.DB_PASSWORD,
		configuration.DB_HOST,
		configuration.DB_PORT,
		configuration.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.Report{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
