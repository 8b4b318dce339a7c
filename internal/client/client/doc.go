// Package client contains the client-side building blocks for gophusers.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface):
//     Exchange, Me, UpdateProfile, UpdateAccount and PresignAvatar.
//  2. Two implementations, HTTPClient and GRPCClient. Both push every call
//     through a session.Pipeline: the pipeline decides which token goes out
//     and learns how each call ended, so session invalidation on 401 lives in
//     one place for both transports.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) for the CLI,
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Outcomes are exposed as sentinel errors matched with errors.Is:
// ErrUnauthorized, ErrUnavailable, ErrNotFound, ErrBadRequest, ErrServer and
// ErrValidation. Validation failures are returned as common.FieldErrors so
// callers can list the rejected fields. Transport failures are always
// ErrUnavailable and never ErrUnauthorized.
//
// # Concurrency & Contexts
//
// Both clients are safe for concurrent use. All operations accept a
// context.Context and honor cancellation; a per-call timeout comes from
// configuration.
package client
