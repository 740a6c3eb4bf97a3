// Package logx is castbot's logging layer: a zerolog-backed Logger passed by
// value to every component, typed Field helpers, and a Service that owns the
// sinks (colored console, JSON file) and swaps them on config reload.
package logx
