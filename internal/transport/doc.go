// Package transport defines the outbound chat boundary: targets, the post
// payload carried by scheduled jobs, and the Adapter implemented per platform.
package transport
