// Package config loads runtime configuration for the keepsake sync
// engine.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   database DSN (sqlite)
//	-b string   local blob store directory
//	-e string   S3-compatible endpoint URL
//	-u int      upload worker count
//	-w int      download worker count
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be
// either strings like "3s" or integer nanoseconds:
//
//	{
//	  "database_dsn": "keepsake.db",
//	  "blob_dir": "blobs",
//	  "s3_endpoint": "http://127.0.0.1:9000",
//	  "s3_region": "us-east-1",
//	  "s3_bucket": "keepsake",
//	  "s3_access_key": "...",
//	  "s3_secret_key": "...",
//	  "upload_workers": 2,
//	  "download_workers": 3,
//	  "online_check_interval": "3s"
//	}
//
// S3 credentials can only come from the JSON file, not from flags.
package config
