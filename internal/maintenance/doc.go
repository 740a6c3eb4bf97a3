// Package maintenance runs the periodic housekeeping jobs on a cron
// schedule: retention cleanup of finished jobs and compressed JSON backups
// of the whole job table.
package maintenance
