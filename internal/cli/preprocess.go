package cli

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// passwordEnv names the environment variable holding the site server password.
const passwordEnv = "CMAS_PASSWORD"

// loadDotEnv loads a .env file from the working directory into the process
// environment. Variables already set are not overridden.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	envPath := filepath.Join(cwd, ".env")
	_ = godotenv.Load(envPath) // no error if .env doesn't exist
}
