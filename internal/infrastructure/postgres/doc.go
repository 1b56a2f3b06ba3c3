// Package postgres provides the pooled PostgreSQL connection used by the
// relational telemetry backend (telemetry.backend: postgres).
//
// The pool is built with pgxpool from the postgres section of config.yaml.
// Credentials should be supplied through ROBOLINK_POSTGRES_USERNAME and
// ROBOLINK_POSTGRES_PASSWORD rather than the config file.
package postgres
