// Package scheduler provides the in-process periodic task runner driving
// billwatch's reminder scan and retention cleanup.
//
// # Overview
//
// Tasks are registered under a stable, human readable name (e.g.
// "reminder.scan"). Registering a name that already exists replaces the
// previous definition, so re-applying config after a hot reload never
// duplicates schedules. TriggerNow runs a registered task immediately, out of
// cadence, which is how the operational "scan now" endpoint works.
//
// # Schedule formats
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "0 3 * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 15m".
//   - Interval durations: Go duration strings like "15m" or "2h30m".
//
// To force interpretation, callers may prefix the string with "cron:" or
// "interval:"/"every:".
//
// # Concurrency
//
// Tasks run on a small worker pool. There is deliberately no per-task retry:
// the reminder pipeline's only retry mechanism is the next scheduled scan.
// Nothing prevents two runs of the same task from overlapping when a run
// outlasts its cadence; the dispatch pipeline documents and accepts the
// resulting double-send race.
//
// # Lifecycle
//
// Start/Stop are idempotent and instance-scoped; no process-wide globals are
// touched, so independent Service instances can coexist (tests rely on this).
// Registering tasks while stopped is supported: definitions are stored and
// scheduled on the next Start.
package scheduler
