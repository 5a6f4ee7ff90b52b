package config

import (
	"flag"
	"os"
	"time"

	"github.com/tutordesk/corekit/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   session JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-q string   fallback log queue path
//	-m int      fallback log queue capacity
//	-l int      log flush interval, seconds
//	-v string   environment tag
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Upload limits
// and feature flags are configurable through the JSON overlay only.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-u", "-p", "-b", "-g", "-e", "-q", "-m", "-l", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SessionSecretKey, "s", config.SessionSecretKey, "session secret key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.FallbackQueuePath, "q", config.FallbackQueuePath, "fallback log queue path")
	fs.IntVar(&config.FallbackQueueCapacity, "m", config.FallbackQueueCapacity, "fallback log queue capacity")
	fs.StringVar(&config.Environment, "v", config.Environment, "environment tag")

	logFlushInterval := fs.Int("l", int(config.LogFlushInterval.Seconds()), "log flush interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LogFlushInterval = time.Duration(*logFlushInterval) * time.Second
}
