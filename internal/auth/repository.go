package auth

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

const instructorColumns = `id, username, password_hash, role, created_at, updated_at`

// Repository handles instructor persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanInstructor(row pgx.Row) (*models.Instructor, error) {
	var u models.Instructor
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("instructor not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns an instructor by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Instructor, error) {
	return scanInstructor(r.pool.QueryRow(ctx, `SELECT `+instructorColumns+` FROM instructors WHERE id = $1`, id))
}

// GetByUsername returns an instructor by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.Instructor, error) {
	return scanInstructor(r.pool.QueryRow(ctx, `SELECT `+instructorColumns+` FROM instructors WHERE username = $1`, username))
}

// List returns all instructors ordered by username.
func (r *Repository) List(ctx context.Context) ([]models.InstructorPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, role, created_at FROM instructors ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.InstructorPublic{}
	for rows.Next() {
		var u models.InstructorPublic
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.Role(role)
		list = append(list, u)
	}
	return list, rows.Err()
}

// Create inserts a new instructor. A taken username is a conflict.
func (r *Repository) Create(ctx context.Context, username, passwordHash string, role models.Role) (*models.Instructor, error) {
	const q = `INSERT INTO instructors (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING ` + instructorColumns
	u, err := scanInstructor(r.pool.QueryRow(ctx, q, username, passwordHash, string(role)))
	if database.IsUniqueViolation(err, "") {
		return nil, apperr.Conflictf("username already registered")
	}
	return u, err
}

// UpdateUsername renames an instructor.
func (r *Repository) UpdateUsername(ctx context.Context, id uuid.UUID, username string) (*models.Instructor, error) {
	const q = `UPDATE instructors SET username = $2, updated_at = NOW() WHERE id = $1
		RETURNING ` + instructorColumns
	u, err := scanInstructor(r.pool.QueryRow(ctx, q, id, username))
	if database.IsUniqueViolation(err, "") {
		return nil, apperr.Conflictf("username already registered")
	}
	return u, err
}

// Delete removes an instructor and, by cascade, their lectures. Reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM instructors WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
