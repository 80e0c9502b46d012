package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/vaultbox/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":3001")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-t duration   session token validity (e.g., "168h")
//	-m duration   media token validity (e.g., "30s")
//	-k string     active encryption key id
//	-f string     storage backend ("fs" or "s3")
//	-r string     storage root for the fs backend
//	-i duration   reconcile interval, 0 disables
//	-l string     log level
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// os.Args is first filtered down to these flags with flagx.FilterArgs so the
// config flags (-c) and anything else on the command line are left alone.
func parseFlags(config *Config) {
	parseFlagArgs(config, os.Args[1:])
}

func parseFlagArgs(config *Config, argv []string) {
	args := flagx.FilterArgs(argv, []string{"-a", "-d", "-s", "-t", "-m", "-k", "-f", "-r", "-i", "-l", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.SessionTokenValidityDuration, "t", config.SessionTokenValidityDuration, "session token validity")
	fs.DurationVar(&config.MediaTokenValidityDuration, "m", config.MediaTokenValidityDuration, "media token validity")
	fs.StringVar(&config.ActiveKeyID, "k", config.ActiveKeyID, "active encryption key id")
	fs.StringVar(&config.StorageBackend, "f", config.StorageBackend, "storage backend (fs|s3)")
	fs.StringVar(&config.StorageRoot, "r", config.StorageRoot, "storage root directory")
	fs.DurationVar(&config.ReconcileInterval, "i", config.ReconcileInterval, "reconcile interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
