// Package history archives terminal jobs in SQLite (modernc.org/sqlite, no
// cgo). The in-memory job store forgets jobs after their TTL; the archive
// keeps a compact summary for `scribe history`, GET /api/history and
// duplicate detection by source digest.
//
// Schema changes ship as numbered files under migrations/ and are applied in
// order inside a single transaction on Open.
package history
