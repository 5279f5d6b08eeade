package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	RootDir string

	Trees      int
	Workers    int
	Seed       int64
	SplitSeed  int64
	MaxDF      float64
	TestSize   float64
	CVFolds    int
	WriteProba bool

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MaxRetries       int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		RootDir: getEnv("ROOT_DIR", "."),

		Trees:      getEnvInt("RF_TREES", 1000),
		Workers:    getEnvInt("RF_WORKERS", 2),
		Seed:       int64(getEnvInt("RF_SEED", 1234)),
		SplitSeed:  int64(getEnvInt("SPLIT_SEED", 1234)),
		MaxDF:      getEnvFloat("TFIDF_MAX_DF", 0.7),
		TestSize:   getEnvFloat("TEST_SIZE", 0.2),
		CVFolds:    getEnvInt("CV_FOLDS", 10),
		WriteProba: getEnvBool("WRITE_PROBA", false),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "classifier"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "classifier"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_ml"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
	}
}

// InputPath is the labelled, imputed listings dataset.
func (c *Config) InputPath() string {
	return filepath.Join(c.RootDir, "results", "Standardized_Deduped_Datasets", "Imputated_data_sqft_price_rooms.csv")
}

// UnlabeledPath is the larger imputed dataset without categories.
func (c *Config) UnlabeledPath() string {
	return filepath.Join(c.RootDir, "results", "Standardized_Deduped_Datasets", "Imputated_data_Aggregated_Clean_20180815_clipped_no_loc.csv")
}

// OutputDir receives the per-model probability reports.
func (c *Config) OutputDir() string {
	return filepath.Join(c.RootDir, "Categorization ML Data", "Outputs")
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] Invalid int for %s=%q, using default %d", key, val, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
		log.Printf("[config] Invalid float for %s=%q, using default %g", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
		log.Printf("[config] Invalid bool for %s=%q, using default %t", key, val, fallback)
	}
	return fallback
}
