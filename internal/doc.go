// Package internal documents the CivicSquare server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, and routing
// - domain: business logic and domain models
// - storage: database access and repositories (pgx + Postgres)
// - jobs: background workers and queues
// - auth, audit, config, email, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
