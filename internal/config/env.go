package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "FILESTORE_CONFIG"
	EnvBaseURL = "FILESTORE_BASE_URL"
	EnvAPIKey  = "FILESTORE_API_KEY"
	EnvBucket  = "FILESTORE_BUCKET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FILESTORE_CONFIG: override config file path
	BaseURL    string // FILESTORE_BASE_URL
	APIKey     string // FILESTORE_API_KEY
	Bucket     string // FILESTORE_BUCKET
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		APIKey:     os.Getenv(EnvAPIKey),
		Bucket:     os.Getenv(EnvBucket),
	}
}
