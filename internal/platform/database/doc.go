// Package database implements the store interfaces on top of sqlx.
//
// The same SQL runs against PostgreSQL (pgx stdlib driver) and SQLite
// (modernc.org/sqlite). Queries are written with ? placeholders and rebound
// per driver; the schema sticks to types both engines understand and is
// managed by embedded goose migrations.
package database
