// Package db provides the embedded database schema and seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for devices, warehouses and orders.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the default device and warehouse catalog loaded by seed-db.
//
//go:embed seed/catalog.json
var Catalog []byte
