// Package engine merges scraped orders into the store.
//
// A merge takes one batch of orders from a Fetcher and commits it in a single
// store transaction. Products are deduplicated by their natural key
// (catalog number, OEM number, description); every line item of a new order
// resolves its product by lookup, inserting it on first sight.
//
// Merge is strictly sequential. Two lines with the same natural key inside
// one batch must resolve to the same product, which only holds while
// lookup-then-insert runs as one step. Do not parallelize the line loop.
//
// Update fetches an explicit date window. Refresh fetches from the day after
// the newest stored order through today.
package engine
