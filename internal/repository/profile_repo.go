package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"coachdesk-backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	query := `SELECT id, name, role, email, student_type, coach_id
		FROM profiles WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Role, &p.Email, &p.StudentType, &p.CoachID,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListStudentsByCoach returns the students linked to a coach, by name.
func (r *ProfileRepo) ListStudentsByCoach(ctx context.Context, coachID uuid.UUID) ([]*models.Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, role, email, student_type, coach_id
		FROM profiles
		WHERE coach_id = $1 AND role = 'student'
		ORDER BY name
	`, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*models.Profile
	for rows.Next() {
		p := &models.Profile{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Email, &p.StudentType, &p.CoachID); err != nil {
			return nil, err
		}
		students = append(students, p)
	}
	return students, rows.Err()
}
