package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophusers/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g., ":8000")
//	-g string     gRPC bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN; empty keeps users in memory
//	-r string     Redis address for the replay guard
//	-s string     JWT HMAC secret key
//	-t duration   session token lifetime (e.g., "30m")
//	-i string     identity provider client id (assertion audience)
//	-k string     PEM file with assertion signing keys
//	-j string     JWKS url with assertion signing keys
//	-b string     S3 bucket for avatars
//	-e string     S3 base endpoint
//	-l string     log level
//
// Arguments are filtered through flagx.FilterArgs first so that -c/-config
// and unknown flags do not break parsing.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-r", "-s", "-t", "-i", "-k", "-j", "-b", "-e", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP address and port")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC address and port")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.DurationVar(&cfg.TokenTTL, "t", cfg.TokenTTL, "session token lifetime")
	fs.StringVar(&cfg.GoogleClientID, "i", cfg.GoogleClientID, "identity provider client id")
	fs.StringVar(&cfg.KeysFile, "k", cfg.KeysFile, "assertion keys PEM file")
	fs.StringVar(&cfg.JWKSURL, "j", cfg.JWKSURL, "assertion JWKS url")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
