// Package stores provides the persistence layer for Confix resolution
// history. It includes SQLite-based storage with WAL mode, connection
// pooling, and CRUD operations for runs, augments, and events.
package stores
