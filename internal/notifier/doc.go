// Package notifier reports job outcomes to the bot owners.
//
// It subscribes to job events on the bus and sends an HTML summary to every
// configured owner chat through the transport adapter. Sends are rate
// limited and retried; a failed report is logged and dropped, it never feeds
// back into job state.
package notifier
