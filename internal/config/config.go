package config

import "time"

// Config holds runtime settings for the sync engine.
//
// Units: OnlineCheckInterval is a time.Duration (e.g., 3*time.Second).
type Config struct {
	DatabaseDSN string
	BlobDir     string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	UploadWorkers   int
	DownloadWorkers int

	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "keepsake.db"
	c.BlobDir = "blobs"
	c.S3Region = "us-east-1"
	c.S3Bucket = "keepsake"
	c.UploadWorkers = 2
	c.DownloadWorkers = 3
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
