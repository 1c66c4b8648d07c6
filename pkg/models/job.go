package models

import "time"

// WorkdayMode selects the day-type filter applied on top of a cron job's
// raw next-run computation.
type WorkdayMode string

const (
	WorkdayNone     WorkdayMode = "none"
	WorkdayMonFri   WorkdayMode = "mon_fri"
	WorkdayWeekend  WorkdayMode = "weekend"
	WorkdayCNWork   WorkdayMode = "cn_workday"
	WorkdayCNRest   WorkdayMode = "cn_restday"
)

// MisfirePolicy decides whether a job fires once more when it is
// discovered stale beyond its grace window.
type MisfirePolicy string

const (
	MisfireFireOnce MisfirePolicy = "fire_once"
	MisfireSkip     MisfirePolicy = "skip"
)

// JobStatus is the lifecycle state of a recurring job.
type JobStatus string

const (
	JobActive JobStatus = "active"
	JobPaused JobStatus = "paused"
)

// RecurringJob is a persistent cron-driven schedule targeting a channel.
type RecurringJob struct {
	JobID       string
	ChatKey     string
	Title       string
	EventDesc   string
	CronExpr    string
	Timezone    string
	WorkdayMode WorkdayMode
	Status      JobStatus

	NextRunAt time.Time
	LastRunAt time.Time

	MisfirePolicy       MisfirePolicy
	MisfireGraceSeconds int

	ConsecutiveFailures int
	LastError           string
	PausedNoticeSentAt  *time.Time
}

// Summary aggregates the recurring engine's jobs for the `summary` operation.
type Summary struct {
	ActiveCount int
	PausedCount int
	Upcoming    []RecurringJob
	Recent      []RecurringJob
}
