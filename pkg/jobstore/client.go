// Package jobstore persists recurring jobs (pkg/models.RecurringJob) to
// PostgreSQL via a raw database/sql pool (the pgx stdlib driver) and
// golang-migrate, mirroring the teacher's pool-construction and
// embedded-migration-at-boot pattern without its ent-generated client,
// which this retrieval pack does not carry (see DESIGN.md).
package jobstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection and pool configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Validate checks that the connection fields are set and the pool sizes
// are consistent.
func (c Config) Validate() error {
	if c.Host == "" || c.Port <= 0 || c.User == "" || c.Password == "" || c.Database == "" {
		return fmt.Errorf("host, port, user, password and database are required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must be between 0 and max_open_conns, got %d", c.MaxIdleConns)
	}
	return nil
}

// Store wraps a PostgreSQL connection pool with the recurring-job CRUD
// surface the Recurring Timer Engine needs.
type Store struct {
	db *stdsql.DB
}

// DB returns the underlying pool for health checks.
func (s *Store) DB() *stdsql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// NewStore opens a pool against cfg, applies pending migrations, and
// returns a ready Store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an already-open pool, useful in tests that bring
// up a database via testcontainers.
func NewStoreFromDB(db *stdsql.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromDSN opens a pool against a single connection string (the
// shape the ambient bridge.yaml's database.dsn field carries) instead of
// the discrete Config fields, applies pending migrations, and returns a
// ready Store. The database name used for the migrate instance's lock key
// is derived from the DSN's path.
func NewStoreFromDSN(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, dsnDatabaseName(dsn)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// dsnDatabaseName extracts the path component of a postgres:// URL (or
// "ssebridge" if the DSN is in keyword=value form) for use as the
// migrate instance's lock namespace; it does not need to be exact, only
// stable for a given target database.
func dsnDatabaseName(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Path != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	return "ssebridge"
}

func runMigrations(db *stdsql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Only close the migration source; closing m would close db via the
	// shared postgres.WithInstance connection, which the caller still owns.
	return sourceDriver.Close()
}

// Upsert inserts or fully replaces job by job_id.
func (s *Store) Upsert(ctx context.Context, job models.RecurringJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_jobs (
			job_id, chat_key, title, event_desc, cron_expr, timezone, workday_mode, status,
			next_run_at, last_run_at, misfire_policy, misfire_grace_seconds,
			consecutive_failures, last_error, paused_notice_sent_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15, now())
		ON CONFLICT (job_id) DO UPDATE SET
			chat_key = EXCLUDED.chat_key,
			title = EXCLUDED.title,
			event_desc = EXCLUDED.event_desc,
			cron_expr = EXCLUDED.cron_expr,
			timezone = EXCLUDED.timezone,
			workday_mode = EXCLUDED.workday_mode,
			status = EXCLUDED.status,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			misfire_policy = EXCLUDED.misfire_policy,
			misfire_grace_seconds = EXCLUDED.misfire_grace_seconds,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_error = EXCLUDED.last_error,
			paused_notice_sent_at = EXCLUDED.paused_notice_sent_at,
			updated_at = now()
	`,
		job.JobID, job.ChatKey, job.Title, job.EventDesc, job.CronExpr, job.Timezone, job.WorkdayMode, job.Status,
		nullTime(job.NextRunAt), nullTime(job.LastRunAt), job.MisfirePolicy, job.MisfireGraceSeconds,
		job.ConsecutiveFailures, job.LastError, job.PausedNoticeSentAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.JobID, err)
	}
	return nil
}

// Get fetches one job by id.
func (s *Store) Get(ctx context.Context, jobID string) (models.RecurringJob, bool, error) {
	row := s.db.QueryRowContext(ctx, jobColumns+` WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err == stdsql.ErrNoRows {
		return models.RecurringJob{}, false, nil
	}
	if err != nil {
		return models.RecurringJob{}, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, true, nil
}

// Delete removes a job by id.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recurring_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

// ListActive returns every job with status='active', used on startup to
// reload the scheduling heap.
func (s *Store) ListActive(ctx context.Context) ([]models.RecurringJob, error) {
	return s.query(ctx, jobColumns+` WHERE status = 'active'`)
}

// ListByChatKey returns jobs targeting chatKey, most-recently-updated first.
// If status is non-empty it further filters by job status.
func (s *Store) ListByChatKey(ctx context.Context, chatKey, status string, limit int) ([]models.RecurringJob, error) {
	if status != "" {
		return s.query(ctx, jobColumns+` WHERE chat_key = $1 AND status = $2 ORDER BY updated_at DESC LIMIT $3`, chatKey, status, limit)
	}
	return s.query(ctx, jobColumns+` WHERE chat_key = $1 ORDER BY updated_at DESC LIMIT $2`, chatKey, limit)
}

// Upcoming returns active jobs with a known next_run_at, soonest first.
func (s *Store) Upcoming(ctx context.Context, chatKey string, limit int) ([]models.RecurringJob, error) {
	return s.query(ctx, jobColumns+` WHERE chat_key = $1 AND status = 'active' AND next_run_at IS NOT NULL
		ORDER BY next_run_at ASC LIMIT $2`, chatKey, limit)
}

// Recent returns jobs that have fired at least once, most recent first.
func (s *Store) Recent(ctx context.Context, chatKey string, limit int) ([]models.RecurringJob, error) {
	return s.query(ctx, jobColumns+` WHERE chat_key = $1 AND last_run_at IS NOT NULL
		ORDER BY last_run_at DESC LIMIT $2`, chatKey, limit)
}

// CountByStatus returns the number of jobs for chatKey in the given status.
func (s *Store) CountByStatus(ctx context.Context, chatKey, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM recurring_jobs WHERE chat_key = $1 AND status = $2`, chatKey, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs chat_key=%s status=%s: %w", chatKey, status, err)
	}
	return n, nil
}

const jobColumns = `SELECT job_id, chat_key, title, event_desc, cron_expr, timezone, workday_mode, status,
	next_run_at, last_run_at, misfire_policy, misfire_grace_seconds,
	consecutive_failures, last_error, paused_notice_sent_at FROM recurring_jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.RecurringJob, error) {
	var job models.RecurringJob
	var nextRun, lastRun, pausedAt stdsql.NullTime
	err := row.Scan(
		&job.JobID, &job.ChatKey, &job.Title, &job.EventDesc, &job.CronExpr, &job.Timezone, &job.WorkdayMode, &job.Status,
		&nextRun, &lastRun, &job.MisfirePolicy, &job.MisfireGraceSeconds,
		&job.ConsecutiveFailures, &job.LastError, &pausedAt,
	)
	if err != nil {
		return models.RecurringJob{}, err
	}
	if nextRun.Valid {
		job.NextRunAt = nextRun.Time
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if pausedAt.Valid {
		t := pausedAt.Time
		job.PausedNoticeSentAt = &t
	}
	return job, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.RecurringJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.RecurringJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
