// Package stores provides SQLite-backed providers. A single SQLiteStore
// hands out an engine.StorageProvider for key/value items and an
// engine.DataProvider that keeps records as JSON documents, both sharing
// one database with WAL mode, connection pooling and embedded migrations.
package stores
