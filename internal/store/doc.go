// Package store holds the working copy of orders, products and order lines
// in an in-memory SQLite database.
//
// The database lives only for one process run. Durability comes from the
// snapshot package, which dumps the whole database on shutdown and replays
// it into a fresh Store on the next start.
//
// # Invariants
//
//   - At most one product per natural key (catalog_number, oem_number,
//     description). Enforced by a UNIQUE constraint and re-checked on lookup.
//   - Order numbers are unique.
//   - Every order line references an existing order and product.
//   - Ids are assigned by the store, never by callers.
//
// # Connection model
//
// The store uses exactly one connection. An in-memory SQLite database is
// private to the connection that opened it, and a single connection also
// serializes every caller onto one logical thread. While Update runs, the
// connection belongs to the transaction: calling Store methods from inside
// the Update function deadlocks. Use the *Tx instead.
package store
