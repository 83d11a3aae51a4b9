// Package history stores completed charging sessions in SQLite.
//
// Sessions are appended by the supervisor's stop-charging action and
// read back by the API's transaction-history endpoint. Unlike the
// persisted last-transaction record (a single JSON file), this store
// keeps the full local session log and supports pruning by age.
package history
