// Package schedule runs named jobs on a shared worker pool: weekly cron
// entries, fixed intervals (optionally bounded to a time window) and one-shot
// timers. Job names are stable keys, so re-registering a name after a restart
// or a config reload replaces the old definition instead of stacking a second
// firing job next to it.
package schedule
