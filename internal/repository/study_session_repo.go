package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coachdesk-backend/internal/models"
	"coachdesk-backend/internal/stopwatch"
)

// StudySessionRepo stores active stopwatch sessions and the completed
// sessions they are flushed into.
type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

const activeSessionColumns = `id, student_id, start_time, is_paused, last_pause_time, total_paused_time`

func scanActiveSession(row pgx.Row) (*models.ActiveSession, error) {
	s := &models.ActiveSession{}
	err := row.Scan(&s.ID, &s.StudentID, &s.StartTime, &s.IsPaused, &s.LastPauseTime, &s.TotalPausedTime)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StudySessionRepo) GetActiveSession(ctx context.Context, studentID uuid.UUID) (*models.ActiveSession, error) {
	s, err := scanActiveSession(r.pool.QueryRow(ctx, `
		SELECT `+activeSessionColumns+`
		FROM active_sessions
		WHERE student_id = $1
		ORDER BY start_time DESC
		LIMIT 1
	`, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// CreateActiveSession replaces whatever session the student had inside one
// transaction; the unique index on student_id settles concurrent starts.
func (r *StudySessionRepo) CreateActiveSession(ctx context.Context, studentID uuid.UUID, start time.Time, pausedAt *time.Time) (*models.ActiveSession, error) {
	var created *models.ActiveSession
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM active_sessions WHERE student_id = $1`, studentID); err != nil {
			return err
		}

		s, err := scanActiveSession(tx.QueryRow(ctx, `
			INSERT INTO active_sessions (student_id, start_time, is_paused, last_pause_time, total_paused_time)
			VALUES ($1, $2, $3, $4, 0)
			RETURNING `+activeSessionColumns,
			studentID, start, pausedAt != nil, pausedAt,
		))
		if err != nil {
			return err
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *StudySessionRepo) UpdateActiveSession(ctx context.Context, id uuid.UUID, patch models.ActiveSessionPatch) (*models.ActiveSession, error) {
	s, err := scanActiveSession(r.pool.QueryRow(ctx, `
		UPDATE active_sessions
		SET is_paused = $2,
			last_pause_time = $3,
			total_paused_time = GREATEST(total_paused_time, $4),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+activeSessionColumns,
		id, patch.IsPaused, patch.LastPauseTime, patch.TotalPausedTime,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stopwatch.ErrSessionNotFound
	}
	return s, err
}

func (r *StudySessionRepo) DeleteActiveSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM active_sessions WHERE id = $1`, id)
	return err
}

func (r *StudySessionRepo) ListActiveStudentIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT student_id FROM active_sessions`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *StudySessionRepo) AppendCompletedSession(ctx context.Context, studentID uuid.UUID, durationSeconds int, date string) (*models.CompletedSession, error) {
	return appendCompleted(ctx, r.pool, studentID, durationSeconds, date)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendCompleted(ctx context.Context, q queryRower, studentID uuid.UUID, durationSeconds int, date string) (*models.CompletedSession, error) {
	c := &models.CompletedSession{
		StudentID:       studentID,
		DurationSeconds: durationSeconds,
		SessionDate:     date,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO study_sessions (student_id, duration_seconds, session_date)
		VALUES ($1, $2, $3::date)
		RETURNING id, created_at
	`, studentID, durationSeconds, date).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FinalizeActiveSession deletes the active session and appends its duration
// in one transaction. Nothing is appended when the session is already gone.
func (r *StudySessionRepo) FinalizeActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string) (*models.CompletedSession, error) {
	var completed *models.CompletedSession
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM active_sessions WHERE id = $1`, s.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return stopwatch.ErrSessionNotFound
		}
		if durationSeconds <= 0 {
			return nil
		}

		completed, err = appendCompleted(ctx, tx, s.StudentID, durationSeconds, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// SplitActiveSession closes s under date and creates its successor starting
// at next in one transaction, so a failure keeps the original row.
func (r *StudySessionRepo) SplitActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string, next time.Time, pausedAt *time.Time) (*models.CompletedSession, *models.ActiveSession, error) {
	var (
		completed *models.CompletedSession
		created   *models.ActiveSession
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM active_sessions WHERE id = $1`, s.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return stopwatch.ErrSessionNotFound
		}
		if durationSeconds > 0 {
			if completed, err = appendCompleted(ctx, tx, s.StudentID, durationSeconds, date); err != nil {
				return err
			}
		}

		created, err = scanActiveSession(tx.QueryRow(ctx, `
			INSERT INTO active_sessions (student_id, start_time, is_paused, last_pause_time, total_paused_time)
			VALUES ($1, $2, $3, $4, 0)
			RETURNING `+activeSessionColumns,
			s.StudentID, next, pausedAt != nil, pausedAt,
		))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return completed, created, nil
}

func (r *StudySessionRepo) SumCompletedSessions(ctx context.Context, studentID uuid.UUID, date string) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(duration_seconds), 0)
		FROM study_sessions
		WHERE student_id = $1
		  AND session_date = $2::date
	`, studentID, date).Scan(&total)
	return total, err
}

func (r *StudySessionRepo) ListDailyTotals(ctx context.Context, studentID uuid.UUID, from, to string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(session_date, 'YYYY-MM-DD'), COALESCE(SUM(duration_seconds), 0)
		FROM study_sessions
		WHERE student_id = $1
		  AND session_date BETWEEN $2::date AND $3::date
		GROUP BY session_date
	`, studentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var date string
		var total int
		if err := rows.Scan(&date, &total); err != nil {
			return nil, err
		}
		totals[date] = total
	}
	return totals, rows.Err()
}

var (
	_ stopwatch.Gateway             = (*StudySessionRepo)(nil)
	_ stopwatch.Finalizer           = (*StudySessionRepo)(nil)
	_ stopwatch.Splitter            = (*StudySessionRepo)(nil)
	_ stopwatch.ActiveSessionLister = (*StudySessionRepo)(nil)
	_ stopwatch.DailyTotalsLister   = (*StudySessionRepo)(nil)
)
