// Package config loads runtime configuration for the gophusers CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via flags: -c or -config.
//  3. Environment variables (GOPHUSERS_*).
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string     base URL of the HTTP API
//	-g string     address:port of the gRPC endpoint
//	-p string     transport: "http" or "grpc"
//	-f string     path of the local session database
//	-t duration   per-request timeout
//	-l string     log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "10s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "grpc_addr": "127.0.0.1:50051",
//	  "transport": "http",
//	  "store_path": "gophusers/client.db",
//	  "timeout": "10s"
//	}
package config
