package lectures

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/database"
)

// accessCodeConstraint is the UNIQUE constraint on lectures.access_code.
const accessCodeConstraint = "lectures_access_code_key"

// ErrCodeTaken is returned by Create when the access code already exists.
var ErrCodeTaken = errors.New("access code taken")

const lectureColumns = `id, instructor_id, title, access_code, document_key, original_name, content_type, size_bytes, page_count, created_at`

// Repository handles lecture persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a lecture repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLecture(row pgx.Row) (*models.Lecture, error) {
	var l models.Lecture
	err := row.Scan(&l.ID, &l.InstructorID, &l.Title, &l.AccessCode, &l.DocumentKey, &l.OriginalName,
		&l.ContentType, &l.SizeBytes, &l.PageCount, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a lecture with a caller-chosen ID.
func (r *Repository) Create(ctx context.Context, l *models.Lecture) error {
	const q = `INSERT INTO lectures (id, instructor_id, title, access_code, document_key, original_name, content_type, size_bytes, page_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, l.ID, l.InstructorID, l.Title, l.AccessCode, l.DocumentKey, l.OriginalName,
		l.ContentType, l.SizeBytes, l.PageCount).Scan(&l.CreatedAt)
	if database.IsUniqueViolation(err, accessCodeConstraint) {
		return ErrCodeTaken
	}
	return err
}

// GetByCode returns a lecture by access code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Lecture, error) {
	l, err := scanLecture(r.pool.QueryRow(ctx, `SELECT `+lectureColumns+` FROM lectures
		WHERE access_code = $1 AND deleted_at IS NULL`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("lecture not found")
	}
	return l, err
}

// ListByInstructor returns an instructor's lectures, newest first.
func (r *Repository) ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]models.Lecture, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lectureColumns+` FROM lectures
		WHERE instructor_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Lecture{}
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// Retire hides a live lecture and reports whether it was live. The row stays, so its access code
// cannot be reissued until Release.
func (r *Repository) Retire(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE lectures SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops a retired lecture row, freeing its access code. Live lectures are never touched.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM lectures WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
