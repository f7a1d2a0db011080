// Package searcher implements semantic search across canonical
// collections.
//
// A query is embedded once, run against each requested collection, and
// the per-source result lists are merged by descending score with
// duplicate chunk ids dropped. Responses are cached in a bounded FIFO
// cache keyed by (query, sorted sources, limit); repeating a query
// returns the cached results without a vector-store round trip. The
// cache holds 100 entries by default, evicts the oldest entry on
// overflow, and is cleared only by InvalidateCache or process restart.
package searcher
