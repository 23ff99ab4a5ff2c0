// Package core provides the import, export and validation operations for
// decision-tree row data.
//
// The package holds the domain logic independent of any transport. The web
// handlers and the treectl CLI both drive a [Service] built on a
// [store.Store].
//
// # Imports
//
// [Service.ImportSpreadsheet] reads one worksheet per active table.
// [Service.ImportJSON] reads an exchange document produced by
// [Service.ExportJSON] and checks it belongs to the same tree. Both write
// every table in a single transaction:
//
//   - Replace: delete the table's rows, then insert every valid row.
//   - Merge (spreadsheet default): update the stored row with the same
//     unique identifier value, insert the rest. A table without a unique
//     identifier column gets its rows appended and one warning.
//   - Append (JSON default): insert every valid row.
//
// Rows that fail validation are reported in [ImportResult] and skipped.
// With ContinueOnError off, any row error cancels the import before the
// write and [ErrValidationFailed] is returned with the result.
//
// Concurrent imports are bounded by an [ImportLimiter].
//
// # Exports
//
// [Service.ExportJSON] and [Service.ExportSpreadsheet] read stored rows
// back. A stored row that cannot be decoded fails the export.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix for support reference:
//
//   - DT: decision tree and table lookups
//   - VAL: row validation
//   - FILE: uploads and documents
//   - IMP: import concurrency, cancellation and timeouts
//   - DB: stored data and database access
//
// # Validation Log
//
// Import errors and warnings are appended to the validation log.
// [Service.StartLogRetention] purges old entries in the background.
package core
