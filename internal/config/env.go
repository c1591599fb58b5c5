package config

import (
	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file from the working directory when present.
// Existing environment variables are never overwritten, and a missing
// file is not an error.
func LoadEnv() {
	_ = godotenv.Load()
}
