package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// loadEnvFile is the single seam over godotenv: overload controls whether
// values already present in the environment are replaced, required
// controls whether a missing file is an error.
func loadEnvFile(path string, overload, required bool) error {
	load := godotenv.Load
	if overload {
		load = godotenv.Overload
	}
	err := load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load env file %s: %w", path, err)
}

// LoadDotEnv loads environment variables from path, or ".env" in the
// current directory when path is empty. A missing file is not an error;
// variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	return loadEnvFile(path, false, false)
}

// MustLoadDotEnv is LoadDotEnv, except a missing file is an error.
func MustLoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	return loadEnvFile(path, false, true)
}

// LoadDotEnvFromFiles loads several env files in order, skipping any
// that do not exist. godotenv never replaces a variable that is already
// set, so the first file to define a key wins.
func LoadDotEnvFromFiles(paths ...string) error {
	for _, path := range paths {
		if err := loadEnvFile(path, false, false); err != nil {
			return err
		}
	}
	return nil
}

// OverloadDotEnvFromFiles loads several env files in order, replacing
// already-set variables, so the last file to define a key wins.
func OverloadDotEnvFromFiles(paths ...string) error {
	for _, path := range paths {
		if err := loadEnvFile(path, true, false); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig assembles the AppConfig the CLI runs with: an optional
// .env file first, then VECTORGATE_-prefixed environment variables on
// top of the built-in defaults.
func LoadConfig(envPath string) (AppConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return AppConfig{}, err
	}
	envCfg, err := LoadFromEnv()
	if err != nil {
		return AppConfig{}, err
	}
	return envCfg.Normalize().ToAppConfig()
}
