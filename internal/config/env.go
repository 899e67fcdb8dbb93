package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; values already present in the process environment win.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads KEY=VALUE pairs from the first readable .env file and reports
// which file was used. A missing file is not an error.
func loadEnvFiles() (string, error) {
	for _, path := range envFiles {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(path); err != nil {
			return path, err
		}
		return path, nil
	}
	return "", nil
}
