package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophusers/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags. The
// arguments are filtered with flagx.FilterArgs so -c/-config and unknown
// flags do not interfere.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-p", "-f", "-t", "-l"})

	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "HTTP API base URL")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC address and port")
	fs.StringVar(&cfg.Transport, "p", cfg.Transport, "transport: http or grpc")
	fs.StringVar(&cfg.StorePath, "f", cfg.StorePath, "local session database")
	fs.DurationVar(&cfg.Timeout, "t", cfg.Timeout, "request timeout")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
