// Package schedule holds the job model shared by the store, the dispatcher and
// the fan-out engine: jobs, their status machine, dispatch results and the
// recurrence calculator.
package schedule
