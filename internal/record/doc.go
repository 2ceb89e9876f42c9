// Package record defines the typed shape of orders produced by the remote
// portal scraper and consumed by the sync engine.
//
// Records are validated and normalized at the boundary: a malformed record is
// rejected with a *RecordError instead of surfacing later as a store or
// index failure.
//
// # Natural-key normalization
//
// Catalog number, OEM number and description form a product's natural key.
// Before comparison each is trimmed of surrounding whitespace and put into
// Unicode NFC form. Nothing else is rewritten: leading zeros on catalog
// numbers are kept exactly as the portal printed them.
package record
