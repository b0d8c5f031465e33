package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophforum/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-s string     token HMAC secret key
//	-t duration   token lifetime (e.g. "1h")
//	-p int        session pool size
//	-w duration   acquire timeout, 0 waits for the request context
//	-l string     log level
//
// os.Args is filtered down to these flags first, so -c/-config and flags
// belonging to other components do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-p", "-w", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.TokenTTL, "t", config.TokenTTL, "token validity duration")
	fs.IntVar(&config.PoolSize, "p", config.PoolSize, "session pool size")
	fs.DurationVar(&config.AcquireTimeout, "w", config.AcquireTimeout, "session acquire timeout")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
