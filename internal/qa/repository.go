package qa

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
)

// Repository handles question and comment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Q&A repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertQuestion appends a question; ID and CreatedAt are set from the row.
func (r *Repository) InsertQuestion(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO lecture_questions (lecture_code, page_index, text, acknowledged)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, q.LectureCode, q.PageIndex, q.Text).Scan(&q.ID, &q.CreatedAt)
}

// InsertComment appends a comment.
func (r *Repository) InsertComment(ctx context.Context, c *models.Comment) error {
	const query = `INSERT INTO lecture_comments (lecture_code, page_index, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, c.LectureCode, c.PageIndex, c.Text).Scan(&c.ID, &c.CreatedAt)
}

// Acknowledge sets acknowledged. There is no way back to false.
func (r *Repository) Acknowledge(ctx context.Context, code string, page int, id int64) (*models.Question, error) {
	const query = `UPDATE lecture_questions SET acknowledged = TRUE
		WHERE id = $1 AND lecture_code = $2 AND page_index = $3
		RETURNING id, lecture_code, page_index, text, acknowledged, created_at`
	var q models.Question
	err := r.pool.QueryRow(ctx, query, id, code, page).
		Scan(&q.ID, &q.LectureCode, &q.PageIndex, &q.Text, &q.Acknowledged, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("question not found")
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repository) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Question{}
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.LectureCode, &q.PageIndex, &q.Text, &q.Acknowledged, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

func (r *Repository) queryComments(ctx context.Context, query string, args ...interface{}) ([]models.Comment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.LectureCode, &c.PageIndex, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// QuestionsByPage returns the questions of one page in id order.
func (r *Repository) QuestionsByPage(ctx context.Context, code string, page int) ([]models.Question, error) {
	return r.queryQuestions(ctx, `SELECT id, lecture_code, page_index, text, acknowledged, created_at
		FROM lecture_questions WHERE lecture_code = $1 AND page_index = $2 ORDER BY id`, code, page)
}

// ListPage returns the questions and comments of one page.
func (r *Repository) ListPage(ctx context.Context, code string, page int) (*models.PageThread, error) {
	qs, err := r.QuestionsByPage(ctx, code, page)
	if err != nil {
		return nil, err
	}
	cs, err := r.queryComments(ctx, `SELECT id, lecture_code, page_index, text, created_at
		FROM lecture_comments WHERE lecture_code = $1 AND page_index = $2 ORDER BY id`, code, page)
	if err != nil {
		return nil, err
	}
	return &models.PageThread{Questions: qs, Comments: cs}, nil
}

// ListAll returns all content of a lecture grouped by page.
func (r *Repository) ListAll(ctx context.Context, code string) (map[int]*models.PageThread, error) {
	qs, err := r.queryQuestions(ctx, `SELECT id, lecture_code, page_index, text, acknowledged, created_at
		FROM lecture_questions WHERE lecture_code = $1 ORDER BY page_index, id`, code)
	if err != nil {
		return nil, err
	}
	cs, err := r.queryComments(ctx, `SELECT id, lecture_code, page_index, text, created_at
		FROM lecture_comments WHERE lecture_code = $1 ORDER BY page_index, id`, code)
	if err != nil {
		return nil, err
	}
	return groupByPage(qs, cs), nil
}

// Counts returns question, acknowledged and comment totals of a lecture.
func (r *Repository) Counts(ctx context.Context, code string) (questions, acknowledged, comments int, err error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM lecture_questions WHERE lecture_code = $1),
		(SELECT COUNT(*) FROM lecture_questions WHERE lecture_code = $1 AND acknowledged),
		(SELECT COUNT(*) FROM lecture_comments WHERE lecture_code = $1)`
	err = r.pool.QueryRow(ctx, query, code).Scan(&questions, &acknowledged, &comments)
	return questions, acknowledged, comments, err
}

// DeleteByLecture removes all questions and comments of a lecture.
func (r *Repository) DeleteByLecture(ctx context.Context, code string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM lecture_questions WHERE lecture_code = $1`, code)
	batch.Queue(`DELETE FROM lecture_comments WHERE lecture_code = $1`, code)
	return r.pool.SendBatch(ctx, batch).Close()
}

func groupByPage(qs []models.Question, cs []models.Comment) map[int]*models.PageThread {
	out := make(map[int]*models.PageThread)
	thread := func(page int) *models.PageThread {
		t, ok := out[page]
		if !ok {
			t = &models.PageThread{Questions: []models.Question{}, Comments: []models.Comment{}}
			out[page] = t
		}
		return t
	}
	for _, q := range qs {
		t := thread(q.PageIndex)
		t.Questions = append(t.Questions, q)
	}
	for _, c := range cs {
		t := thread(c.PageIndex)
		t.Comments = append(t.Comments, c)
	}
	return out
}
