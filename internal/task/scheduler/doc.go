// Package scheduler runs named housekeeping jobs (diagnostics reports,
// history retention) on cron or interval schedules backed by robfig/cron.
package scheduler
