// Package schedule runs jobs on cron specs until its context ends.
//
// Specs use the standard five-field cron syntax or descriptors such as
// "@hourly" and "@every 30m". A job still running when its next tick
// arrives is skipped for that tick.
package schedule
