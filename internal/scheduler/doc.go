// Package scheduler is the dispatcher: a single background poll loop that
// finds due jobs, drives each through the fan-out engine, records the result
// and advances or retires the job. It also exposes the scheduling API used by
// the bot and the CLI.
//
// Due jobs within a tick run sequentially in ascending trigger time. A job's
// status is persisted as executing before any send, so a job can never be
// executed twice concurrently, and a crash mid fan-out leaves a marker that
// Start turns back into pending.
package scheduler
