// Package broadcast sends one piece of content to an ordered list of targets,
// isolating failures per target and pacing sends with a fixed delay and an
// optional token bucket.
package broadcast
