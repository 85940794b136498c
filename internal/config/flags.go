package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/keepsake/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   database DSN (default from Config)
//	-b string   blob store directory (default from Config)
//	-e string   S3-compatible endpoint URL (default from Config)
//	-u int      upload worker count (default from Config)
//	-w int      download worker count (default from Config)
//	-i int      online check interval in seconds (default from Config)
//
// The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b", "-e", "-u", "-w", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.BlobDir, "b", cfg.BlobDir, "blob store directory")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3-compatible endpoint URL")
	fs.IntVar(&cfg.UploadWorkers, "u", cfg.UploadWorkers, "upload worker count")
	fs.IntVar(&cfg.DownloadWorkers, "w", cfg.DownloadWorkers, "download worker count")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
