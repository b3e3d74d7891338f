// Package reading holds the append-only sensor reading log.
//
// Two channels exist: temperature and brightness. Readings are stamped
// with the bridge clock when they are appended; sensor clocks are never
// trusted, so order is arrival order.
//
// Log keeps a bounded ring of recent readings per channel for hydrating
// new observers. The durable copy lives in the readings table and is
// written through SQLiteRepository; at cold start the ring is backfilled
// from it.
package reading
