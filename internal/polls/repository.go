package polls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
)

const pollColumns = `id, instructor_id, lecture_code, question, options, duration_seconds, is_active, created_at, activated_at, ends_at`

// Repository handles poll persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPoll(row pgx.Row) (*models.Poll, error) {
	var (
		p   models.Poll
		raw []byte
	)
	err := row.Scan(&p.ID, &p.InstructorID, &p.LectureCode, &p.Question, &raw, &p.DurationSeconds,
		&p.IsActive, &p.CreatedAt, &p.ActivatedAt, &p.EndsAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &p.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return &p, nil
}

func collectPolls(rows pgx.Rows) ([]models.Poll, error) {
	defer rows.Close()
	var list []models.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Create inserts a new poll.
func (r *Repository) Create(ctx context.Context, p *models.Poll) error {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	const query = `INSERT INTO polls (instructor_id, lecture_code, question, options, duration_seconds, is_active)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, p.InstructorID, p.LectureCode, p.Question, options, p.DurationSeconds).
		Scan(&p.ID, &p.CreatedAt)
}

// Get returns a poll by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("poll not found")
	}
	return p, err
}

// List returns polls matching f ordered by created_at descending.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Poll, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.InstructorID != "" {
		args = append(args, f.InstructorID)
		where = append(where, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if f.LectureCode != "" {
		args = append(args, f.LectureCode)
		where = append(where, fmt.Sprintf("lecture_code = $%d", len(args)))
	}
	query := `SELECT ` + pollColumns + ` FROM polls`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	list, err := collectPolls(rows)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Poll{}
	}
	return list, nil
}

// Current returns the most recently activated poll of a lecture, or nil.
func (r *Repository) Current(ctx context.Context, lectureCode string) (*models.Poll, error) {
	const query = `SELECT ` + pollColumns + ` FROM polls
		WHERE lecture_code = $1 AND is_active
		ORDER BY activated_at DESC LIMIT 1`
	p, err := scanPoll(r.pool.QueryRow(ctx, query, lectureCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Delete removes a poll and reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByLecture removes all polls of a lecture.
func (r *Repository) DeleteByLecture(ctx context.Context, lectureCode string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE lecture_code = $1`, lectureCode)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Transition locks the poll and every other poll of its lecture (in id order, so concurrent
// transitions in one lecture serialize instead of deadlocking), applies fn and writes the result.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, fn func(p *models.Poll, lecture []models.Poll) error) (*models.Poll, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var code string
	err = tx.QueryRow(ctx, `SELECT lecture_code FROM polls WHERE id = $1`, id).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("poll not found")
	}
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if code == "" {
		rows, err = tx.Query(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1 FOR UPDATE`, id)
	} else {
		rows, err = tx.Query(ctx, `SELECT `+pollColumns+` FROM polls WHERE lecture_code = $1 ORDER BY id FOR UPDATE`, code)
	}
	if err != nil {
		return nil, err
	}
	locked, err := collectPolls(rows)
	if err != nil {
		return nil, err
	}

	var (
		target  *models.Poll
		lecture []models.Poll
	)
	for i := range locked {
		if locked[i].ID == id {
			target = &locked[i]
			continue
		}
		lecture = append(lecture, locked[i])
	}
	if target == nil {
		return nil, apperr.NotFoundf("poll not found")
	}

	if err := fn(target, lecture); err != nil {
		return nil, err
	}

	options, err := json.Marshal(target.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	const update = `UPDATE polls SET question = $2, options = $3, duration_seconds = $4,
		is_active = $5, activated_at = $6, ends_at = $7 WHERE id = $1`
	if _, err := tx.Exec(ctx, update, target.ID, target.Question, options, target.DurationSeconds,
		target.IsActive, target.ActivatedAt, target.EndsAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return target, nil
}
