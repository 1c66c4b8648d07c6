// Package recurring implements the persistent cron-driven Recurring Timer
// Engine: a version-tagged min-heap of due times backed by Postgres storage,
// event-driven sleep-until-next scheduling, misfire handling, auto-pause on
// repeated failure, and day-type filtering. Grounded line-for-line on the
// original RecurringTimerService.
package recurring

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/ssebridge/pkg/apierr"
	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc"
	"github.com/codeready-toolchain/ssebridge/pkg/jobstore"
	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

// maxWorkdayFilterSteps bounds the cron-iterator advance loop used to find
// the next occurrence that also satisfies a job's workday_mode.
const maxWorkdayFilterSteps = 370

// Engine schedules and fires recurring jobs.
type Engine struct {
	store  *jobstore.Store
	msgSvc externalsvc.MessageService
	oracle externalsvc.HolidayOracle
	logger *slog.Logger

	mu       sync.Mutex
	versions map[string]int
	heap     jobHeap
	wakeup   chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Engine. oracle may be nil, in which case cn_workday/
// cn_restday modes fall back to mon_fri/weekend immediately.
func New(store *jobstore.Store, msgSvc externalsvc.MessageService, oracle externalsvc.HolidayOracle) *Engine {
	return &Engine{
		store:    store,
		msgSvc:   msgSvc,
		oracle:   oracle,
		logger:   slog.Default().With("component", "recurring"),
		versions: make(map[string]int),
		wakeup:   make(chan struct{}, 1),
	}
}

// Start reloads active jobs from storage, recomputing their next_run_at,
// schedules them, and launches the scheduling loop. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	if e.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.mu.Lock()
	e.heap = nil
	e.versions = make(map[string]int)
	e.mu.Unlock()

	jobs, err := e.store.ListActive(ctx)
	if err != nil {
		e.cancel()
		e.cancel = nil
		return fmt.Errorf("load active jobs: %w", err)
	}

	e.logger.Info("reloading recurring jobs", "active_jobs", len(jobs))
	for _, job := range jobs {
		next, err := e.computeNextRun(ctx, job)
		if err != nil {
			e.logger.Error("restore recurring job failed", "job_id", job.JobID, "error", err)
			continue
		}
		job.NextRunAt = next
		if err := e.store.Upsert(ctx, job); err != nil {
			e.logger.Error("persist restored next_run_at failed", "job_id", job.JobID, "error", err)
		}
		e.scheduleJob(job)
	}

	go e.runLoop(runCtx)
	e.logger.Info("recurring timer engine started")
	return nil
}

// Running reports whether the scheduling loop is currently active, used
// by the ambient health endpoint.
func (e *Engine) Running() bool {
	return e.cancel != nil
}

// Stop signals the scheduling loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.mu.Lock()
	e.heap = nil
	e.versions = make(map[string]int)
	e.mu.Unlock()
	e.cancel = nil
	e.logger.Info("recurring timer engine stopped")
}

// Upsert creates job if it has no JobID, or refreshes an existing one's
// schedule otherwise. In both cases next_run_at is (re)computed and the
// job is persisted and (re)scheduled.
func (e *Engine) Upsert(ctx context.Context, job models.RecurringJob) (models.RecurringJob, error) {
	if job.JobID == "" {
		id, err := generateJobID(ctx, e.jobIDTaken)
		if err != nil {
			return models.RecurringJob{}, fmt.Errorf("generate job id: %w", err)
		}
		job.JobID = id
	}
	if job.Status == "" {
		job.Status = models.JobActive
	}
	if job.MisfirePolicy == "" {
		job.MisfirePolicy = models.MisfireFireOnce
	}
	if job.MisfireGraceSeconds == 0 {
		job.MisfireGraceSeconds = 300
	}

	next, err := e.computeNextRun(ctx, job)
	if err != nil {
		return models.RecurringJob{}, err
	}
	job.NextRunAt = next

	if err := e.store.Upsert(ctx, job); err != nil {
		return models.RecurringJob{}, err
	}
	e.scheduleJob(job)
	return job, nil
}

func (e *Engine) jobIDTaken(ctx context.Context, id string) (bool, error) {
	_, ok, err := e.store.Get(ctx, id)
	return ok, err
}

// Pause marks jobID paused and removes it from the scheduling heap.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	job, ok, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.ErrNotFound
	}
	job.Status = models.JobPaused
	if err := e.store.Upsert(ctx, job); err != nil {
		return err
	}
	e.unscheduleJob(jobID)
	return nil
}

// Resume reactivates jobID, clears its failure state, and reschedules it.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	job, ok, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.ErrNotFound
	}
	job.Status = models.JobActive
	job.ConsecutiveFailures = 0
	job.LastError = ""
	job.PausedNoticeSentAt = nil
	_, err = e.Upsert(ctx, job)
	return err
}

// Delete unschedules and removes jobID.
func (e *Engine) Delete(ctx context.Context, jobID string) error {
	e.unscheduleJob(jobID)
	return e.store.Delete(ctx, jobID)
}

// RunNow fires jobID immediately without shifting its schedule, then
// recomputes and persists its next_run_at as usual.
func (e *Engine) RunNow(ctx context.Context, jobID string) error {
	job, ok, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.ErrNotFound
	}
	if job.Status != models.JobActive {
		return apierr.NewValidationError("status", "job is not active")
	}

	tz, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return apierr.NewValidationError("timezone", err.Error())
	}
	e.fireJob(ctx, &job, time.Now().In(tz), false)
	_, err = e.Upsert(ctx, job)
	return err
}

// List returns jobs for chatKey, backfilling next_run_at for any active job
// that is missing one (stale data, or a row inserted outside this engine).
func (e *Engine) List(ctx context.Context, chatKey, status string, limit int) ([]models.RecurringJob, error) {
	jobs, err := e.store.ListByChatKey(ctx, chatKey, status, limit)
	if err != nil {
		return nil, err
	}
	for i, job := range jobs {
		if job.Status == models.JobActive && job.NextRunAt.IsZero() {
			updated, err := e.Upsert(ctx, job)
			if err != nil {
				e.logger.Error("backfill next_run_at failed", "job_id", job.JobID, "error", err)
				continue
			}
			jobs[i] = updated
		}
	}
	return jobs, nil
}

// Summary aggregates active/paused counts and the upcoming/recent job lists
// for chatKey, used by the summary operation.
func (e *Engine) Summary(ctx context.Context, chatKey string, upcomingLimit, recentLimit int) (models.Summary, error) {
	active, err := e.store.CountByStatus(ctx, chatKey, string(models.JobActive))
	if err != nil {
		return models.Summary{}, err
	}
	paused, err := e.store.CountByStatus(ctx, chatKey, string(models.JobPaused))
	if err != nil {
		return models.Summary{}, err
	}
	upcoming, err := e.store.Upcoming(ctx, chatKey, upcomingLimit)
	if err != nil {
		return models.Summary{}, err
	}
	recent, err := e.store.Recent(ctx, chatKey, recentLimit)
	if err != nil {
		return models.Summary{}, err
	}
	return models.Summary{ActiveCount: active, PausedCount: paused, Upcoming: upcoming, Recent: recent}, nil
}

func (e *Engine) scheduleJob(job models.RecurringJob) {
	if job.Status != models.JobActive || job.NextRunAt.IsZero() {
		return
	}
	e.mu.Lock()
	version := e.versions[job.JobID] + 1
	e.versions[job.JobID] = version
	heap.Push(&e.heap, heapItem{nextRun: job.NextRunAt, jobID: job.JobID, version: version})
	size := e.heap.Len()
	e.mu.Unlock()
	e.signalWakeup()
	e.logger.Debug("scheduled", "job_id", job.JobID, "version", version, "next_run_at", job.NextRunAt, "heap_size", size)
}

func (e *Engine) unscheduleJob(jobID string) {
	e.mu.Lock()
	e.versions[jobID] = e.versions[jobID] + 1
	e.mu.Unlock()
	e.signalWakeup()
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := e.peekNextItem()
		if !ok {
			e.waitForWakeup(ctx, nil)
			continue
		}

		now := time.Now()
		if item.nextRun.After(now) {
			d := item.nextRun.Sub(now)
			e.waitForWakeup(ctx, &d)
			continue
		}

		item, ok = e.popNextReadyItem()
		if !ok {
			continue
		}

		job, found, err := e.store.Get(ctx, item.jobID)
		if err != nil {
			e.logger.Error("load due job failed", "job_id", item.jobID, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if !found || job.Status != models.JobActive {
			e.logger.Debug("skipping popped item", "job_id", item.jobID, "found", found)
			continue
		}

		tz, err := time.LoadLocation(job.Timezone)
		if err != nil {
			e.logger.Error("invalid job timezone", "job_id", job.JobID, "timezone", job.Timezone, "error", err)
			continue
		}
		e.handleDueJob(ctx, job, time.Now().In(tz))
	}
}

func (e *Engine) peekNextItem() (heapItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.heap.Len() > 0 {
		item := e.heap[0]
		if item.version != e.versions[item.jobID] {
			heap.Pop(&e.heap)
			continue
		}
		return item, true
	}
	return heapItem{}, false
}

func (e *Engine) popNextReadyItem() (heapItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.heap.Len() > 0 {
		item := heap.Pop(&e.heap).(heapItem)
		if item.version != e.versions[item.jobID] {
			continue
		}
		return item, true
	}
	return heapItem{}, false
}

func (e *Engine) waitForWakeup(ctx context.Context, timeout *time.Duration) {
	var timeoutCh <-chan time.Time
	if timeout != nil {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case <-ctx.Done():
	case <-e.wakeup:
	case <-timeoutCh:
	}
}

// handleDueJob classifies the misfire, applies misfire_policy for
// occurrences past grace, and otherwise fires the job — always recomputing
// and persisting the next occurrence afterward.
func (e *Engine) handleDueJob(ctx context.Context, job models.RecurringJob, firedAt time.Time) {
	isMisfire := false
	if !job.NextRunAt.IsZero() && firedAt.Sub(job.NextRunAt) > time.Second {
		isMisfire = true
	}

	if isMisfire && !job.NextRunAt.IsZero() {
		lag := firedAt.Sub(job.NextRunAt)
		if lag > time.Duration(job.MisfireGraceSeconds)*time.Second {
			e.logger.Debug("misfire beyond grace", "job_id", job.JobID, "lag", lag, "policy", job.MisfirePolicy)
			if job.MisfirePolicy == models.MisfireSkip {
				if _, err := e.Upsert(ctx, job); err != nil {
					e.logger.Error("reschedule after misfire skip failed", "job_id", job.JobID, "error", err)
				}
				return
			}
			// fire_once: still fires this one occurrence despite exceeding grace.
			e.fireJob(ctx, &job, firedAt, true)
			if _, err := e.Upsert(ctx, job); err != nil {
				e.logger.Error("reschedule after misfire fire_once failed", "job_id", job.JobID, "error", err)
			}
			return
		}
	}

	e.fireJob(ctx, &job, firedAt, isMisfire)
	if _, err := e.Upsert(ctx, job); err != nil {
		e.logger.Error("reschedule after fire failed", "job_id", job.JobID, "error", err)
	}
}

func (e *Engine) fireJob(ctx context.Context, job *models.RecurringJob, firedAt time.Time, isMisfire bool) {
	title := ""
	if job.Title != "" {
		title = job.Title + "\n"
	}
	misfireTag := ""
	if isMisfire {
		misfireTag = "（补发）"
	}
	systemMessage := fmt.Sprintf("⏰ 定时提醒%s：%s%s", misfireTag, title, job.EventDesc)

	if err := e.msgSvc.PushSystemMessage(ctx, job.ChatKey, systemMessage, true); err != nil {
		job.ConsecutiveFailures++
		job.LastError = err.Error()
		if uerr := e.store.Upsert(ctx, *job); uerr != nil {
			e.logger.Error("persist failure state failed", "job_id", job.JobID, "error", uerr)
		}
		e.logger.Error("recurring job fire failed", "job_id", job.JobID, "error", apierr.NewJobExecutionError(job.JobID, err))
		if job.ConsecutiveFailures >= 3 {
			e.autoPauseJob(ctx, job)
		}
		return
	}

	job.LastRunAt = firedAt
	job.ConsecutiveFailures = 0
	job.LastError = ""
	e.logger.Debug("fired", "job_id", job.JobID, "fired_at", firedAt, "misfire", isMisfire)
}

func (e *Engine) autoPauseJob(ctx context.Context, job *models.RecurringJob) {
	if job.PausedNoticeSentAt != nil {
		job.Status = models.JobPaused
		if err := e.store.Upsert(ctx, *job); err != nil {
			e.logger.Error("persist re-pause failed", "job_id", job.JobID, "error", err)
		}
		e.unscheduleJob(job.JobID)
		return
	}

	job.Status = models.JobPaused
	tz, err := time.LoadLocation(job.Timezone)
	if err != nil {
		tz = time.UTC
	}
	now := time.Now().In(tz)
	job.PausedNoticeSentAt = &now
	if err := e.store.Upsert(ctx, *job); err != nil {
		e.logger.Error("persist auto-pause failed", "job_id", job.JobID, "error", err)
	}
	e.unscheduleJob(job.JobID)
	e.logger.Info("job auto-paused after repeated failures", "job_id", job.JobID, "failures", job.ConsecutiveFailures)

	title := job.Title
	if title == "" {
		title = "（无）"
	}
	lastErr := job.LastError
	if lastErr == "" {
		lastErr = "（无）"
	}
	notice := fmt.Sprintf(
		"⏸️ 定时任务已自动暂停：连续触发失败次数过多。\n- 任务ID: %s\n- 标题: %s\n- 最近错误: %s\n你可以让 AI 调用 resume_recurring_timer 恢复，或 update_recurring_timer 修正参数。",
		job.JobID, title, lastErr,
	)
	if err := e.msgSvc.PushSystemMessage(ctx, job.ChatKey, notice, false); err != nil {
		e.logger.Error("send auto-pause notice failed", "job_id", job.JobID, "error", err)
	}
}

// computeNextRun parses cron_expr in the job's timezone, bases the search at
// max(now, last_run_at+1s), and advances until a candidate satisfies
// workday_mode.
func (e *Engine) computeNextRun(ctx context.Context, job models.RecurringJob) (time.Time, error) {
	tz, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return time.Time{}, apierr.NewValidationError("timezone", err.Error())
	}

	schedule, err := cron.ParseStandard(job.CronExpr)
	if err != nil {
		return time.Time{}, apierr.NewValidationError("cron_expr", err.Error())
	}

	base := time.Now().In(tz)
	if !job.LastRunAt.IsZero() {
		last := job.LastRunAt.In(tz).Add(time.Second)
		if last.After(base) {
			base = last
		}
	}

	candidate := schedule.Next(base)
	return e.applyWorkdayFilter(ctx, job, schedule, tz, candidate)
}

func (e *Engine) applyWorkdayFilter(ctx context.Context, job models.RecurringJob, schedule cron.Schedule, tz *time.Location, candidate time.Time) (time.Time, error) {
	if job.WorkdayMode == models.WorkdayNone {
		return candidate, nil
	}

	for skipped := 0; skipped < maxWorkdayFilterSteps; skipped++ {
		ok := e.matchesWorkdayMode(ctx, job.WorkdayMode, candidate)
		if ok {
			if skipped > 0 {
				e.logger.Debug("workday filter accepted", "job_id", job.JobID, "skipped", skipped, "mode", job.WorkdayMode)
			}
			return candidate, nil
		}
		candidate = schedule.Next(candidate).In(tz)
	}

	return time.Time{}, apierr.NewValidationError("workday_mode", fmt.Sprintf("workday filter exceeded %d iterations for job %s", maxWorkdayFilterSteps, job.JobID))
}

func (e *Engine) matchesWorkdayMode(ctx context.Context, mode models.WorkdayMode, candidate time.Time) bool {
	switch mode {
	case models.WorkdayMonFri:
		return isMonFri(candidate)
	case models.WorkdayWeekend:
		return isWeekend(candidate)
	case models.WorkdayCNWork:
		if e.oracle == nil {
			return isMonFri(candidate)
		}
		switch e.oracle.IsWorkday(ctx, candidate) {
		case externalsvc.WorkdayYes:
			return true
		case externalsvc.WorkdayNo:
			return false
		default:
			return isMonFri(candidate)
		}
	case models.WorkdayCNRest:
		if e.oracle == nil {
			return isWeekend(candidate)
		}
		switch e.oracle.IsRestday(ctx, candidate) {
		case externalsvc.WorkdayYes:
			return true
		case externalsvc.WorkdayNo:
			return false
		default:
			return isWeekend(candidate)
		}
	default:
		return true
	}
}

func isMonFri(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
