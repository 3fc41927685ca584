// Package core holds the session logic of the CSV column reorderer,
// independent of HTTP and rendering.
//
// # Session Controller
//
// A [Session] owns at most one loaded file. Its [State] moves through
//
//	Empty -> Loaded -> Reordered -> Exported
//
// driven by four transitions:
//
//   - [Session.FileLoaded] installs a completed parse. Prior state is
//     discarded first, so a failed load leaves the session Empty.
//   - [Session.ColumnsReordered] moves one column. Valid whenever a file is
//     loaded; out-of-range indexes change nothing.
//   - [Session.ExportRequested] projects and serializes the rows, revoking
//     the previous download handle. Requires at least one data row.
//   - [Session.Close] ends the session and revokes the live handle.
//
// # Service
//
// [Service] hosts one session per browser. It bounds concurrent parses with a
// [ParseLimiter], evicts idle sessions, wraps each transition in an
// OpenTelemetry span and writes an audit event per transition.
//
// # Error Handling
//
// Transitions return sentinel errors that work with errors.Is. [MapError]
// turns them into a [UserMessage] with a support code:
//
//   - FILE001-FILE005: file errors (size, malformed CSV, missing header)
//   - ORD001-ORD002: reorder errors
//   - EXP001-EXP002: export and download errors
//   - SES001-SES002, UPL002-UPL005: session and capacity errors
package core
