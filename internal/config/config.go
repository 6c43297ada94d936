package config

import (
	"log"
	"os"
	"strings"

	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
)

// GetDataStoreConfig returns the data store configuration based on
// environment variables.
func GetDataStoreConfig() datastore.Config {
	storeType := os.Getenv("CONTRACT_STORE_TYPE")
	if storeType == "" {
		storeType = "postgresql"
	}

	config := datastore.Config{}

	switch strings.ToLower(storeType) {
	case "mock":
		config.Type = datastore.MockStore
	case "postgresql", "postgres", "db":
		config.Type = datastore.PostgreSQLStore
		config.ConnectionString = getConnectionString()
	default:
		// Default to PostgreSQL if unknown type
		config.Type = datastore.PostgreSQLStore
		config.ConnectionString = getConnectionString()
	}

	return config
}

// getConnectionString returns the database connection string
func getConnectionString() string {
	connStr := os.Getenv("DB_CONN_STRING")
	if connStr == "" {
		// Default connection string for local development
		return "postgres://localhost:5432/postgres?sslmode=disable"
	}
	return connStr
}

// IsMockMode returns true if running in mock mode
func IsMockMode() bool {
	storeType := os.Getenv("CONTRACT_STORE_TYPE")
	return strings.EqualFold(storeType, "mock")
}

// GetAPIKey looks for GEMINI_API_KEY first, then falls back to
// GOOGLE_API_KEY.
func GetAPIKey() string {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		return apiKey
	}
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		log.Println("using GOOGLE_API_KEY for Gemini API (consider setting GEMINI_API_KEY)")
		return apiKey
	}
	return ""
}

// GetPolicyPath returns the clause policy override path, empty for the
// embedded default.
func GetPolicyPath() string {
	return os.Getenv("CLAUSE_POLICY_PATH")
}
