// Package qa stores per-page questions and comments of a lecture and keeps the unanswered-page
// set in step with every question write.
package qa

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/metrics"
)

// DefaultMaxTextLength bounds question and comment text in runes.
const DefaultMaxTextLength = 500

// Store persists questions and comments.
type Store interface {
	InsertQuestion(ctx context.Context, q *models.Question) error
	InsertComment(ctx context.Context, c *models.Comment) error
	// Acknowledge sets acknowledged=true and returns the question, or a not-found error.
	Acknowledge(ctx context.Context, code string, page int, id int64) (*models.Question, error)
	QuestionsByPage(ctx context.Context, code string, page int) ([]models.Question, error)
	ListPage(ctx context.Context, code string, page int) (*models.PageThread, error)
	ListAll(ctx context.Context, code string) (map[int]*models.PageThread, error)
}

// Tracker is the unanswered-page set. *unanswered.Tracker satisfies it.
type Tracker interface {
	Begin(ctx context.Context, code string, page int) (int64, error)
	Apply(ctx context.Context, code string, page int, version int64, questions []models.Question) (applied, unanswered bool, err error)
	RebuildDue(ctx context.Context, code string) (bool, error)
	Rebuild(ctx context.Context, code string, load func(ctx context.Context) (map[int][]models.Question, error)) error
	Pages(ctx context.Context, code string) ([]int, error)
}

// LectureLookup resolves an access code to its lecture.
type LectureLookup interface {
	Lookup(ctx context.Context, code string) (*models.Lecture, error)
}

// Ledger is the Q&A service.
type Ledger struct {
	store    Store
	tracker  Tracker
	lectures LectureLookup
	maxText  int
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewLedger creates a Q&A ledger. maxText <= 0 means DefaultMaxTextLength.
func NewLedger(store Store, tracker Tracker, lectures LectureLookup, maxText int, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxText <= 0 {
		maxText = DefaultMaxTextLength
	}
	return &Ledger{store: store, tracker: tracker, lectures: lectures, maxText: maxText, metrics: m, logger: logger}
}

// resolve validates code and page against the lecture.
func (l *Ledger) resolve(ctx context.Context, code string, page int) (*models.Lecture, error) {
	lec, err := l.lectures.Lookup(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if !lec.ValidPage(page) {
		return nil, apperr.Validationf("page %d out of range", page)
	}
	return lec, nil
}

func (l *Ledger) cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validationf("text is required")
	}
	if utf8.RuneCountInString(text) > l.maxText {
		return "", apperr.Validationf("text must be at most %d characters", l.maxText)
	}
	return text, nil
}

// recomputePage re-derives one page's membership. The version is taken before the read so a
// recompute that read older questions cannot overwrite a newer one.
func (l *Ledger) recomputePage(ctx context.Context, code string, page int) (bool, error) {
	version, err := l.tracker.Begin(ctx, code, page)
	if err != nil {
		return false, err
	}
	qs, err := l.store.QuestionsByPage(ctx, code, page)
	if err != nil {
		return false, err
	}
	_, unanswered, err := l.tracker.Apply(ctx, code, page, version, qs)
	return unanswered, err
}

// recompute runs after a question write. A tracker failure is logged and not returned: the write
// already succeeded and the periodic rebuild on read repairs the set.
func (l *Ledger) recompute(ctx context.Context, code string, page int) {
	if _, err := l.recomputePage(ctx, code, page); err != nil {
		l.logger.Warn("unanswered recompute failed", zap.String("lecture_code", code), zap.Int("page", page), zap.Error(err))
	}
}

// PostQuestion appends an unacknowledged question to a page.
func (l *Ledger) PostQuestion(ctx context.Context, code string, page int, text string) (*models.Question, error) {
	lec, err := l.resolve(ctx, code, page)
	if err != nil {
		return nil, err
	}
	text, err = l.cleanText(text)
	if err != nil {
		return nil, err
	}
	q := &models.Question{LectureCode: lec.AccessCode, PageIndex: page, Text: text}
	if err := l.store.InsertQuestion(ctx, q); err != nil {
		return nil, err
	}
	l.metrics.QuestionPosted()
	l.recompute(ctx, lec.AccessCode, page)
	return q, nil
}

// PostComment appends a comment to a page.
func (l *Ledger) PostComment(ctx context.Context, code string, page int, text string) (*models.Comment, error) {
	lec, err := l.resolve(ctx, code, page)
	if err != nil {
		return nil, err
	}
	text, err = l.cleanText(text)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{LectureCode: lec.AccessCode, PageIndex: page, Text: text}
	if err := l.store.InsertComment(ctx, c); err != nil {
		return nil, err
	}
	l.metrics.CommentPosted()
	return c, nil
}

// Acknowledge marks a question answered. Only the owning instructor may do so; repeating it is a no-op.
func (l *Ledger) Acknowledge(ctx context.Context, code string, page int, id int64, instructorID uuid.UUID) (*models.Question, error) {
	lec, err := l.resolve(ctx, code, page)
	if err != nil {
		return nil, err
	}
	if lec.InstructorID != instructorID {
		return nil, apperr.Forbiddenf("only the lecture owner can acknowledge questions")
	}
	q, err := l.store.Acknowledge(ctx, lec.AccessCode, page, id)
	if err != nil {
		return nil, err
	}
	l.metrics.Acknowledged()
	l.recompute(ctx, lec.AccessCode, page)
	return q, nil
}

// ListByPage returns a page's questions and comments in id order.
func (l *Ledger) ListByPage(ctx context.Context, code string, page int) (*models.PageThread, error) {
	lec, err := l.resolve(ctx, code, page)
	if err != nil {
		return nil, err
	}
	return l.store.ListPage(ctx, lec.AccessCode, page)
}

// ListAll returns every page that has content, keyed by page index.
func (l *Ledger) ListAll(ctx context.Context, code string) (map[int]*models.PageThread, error) {
	lec, err := l.lectures.Lookup(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	return l.store.ListAll(ctx, lec.AccessCode)
}

// RecomputePage refreshes one page's unanswered membership on demand, e.g. before navigating away.
func (l *Ledger) RecomputePage(ctx context.Context, code string, page int) (bool, error) {
	lec, err := l.resolve(ctx, code, page)
	if err != nil {
		return false, err
	}
	return l.recomputePage(ctx, lec.AccessCode, page)
}

// UnansweredPages returns the sorted unanswered page indexes of a lecture. Once per tracker
// rebuild interval the set is first rebuilt from the stored questions.
func (l *Ledger) UnansweredPages(ctx context.Context, code string) ([]int, error) {
	lec, err := l.lectures.Lookup(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	due, err := l.tracker.RebuildDue(ctx, lec.AccessCode)
	if err != nil {
		l.logger.Warn("unanswered rebuild check failed", zap.String("lecture_code", lec.AccessCode), zap.Error(err))
	} else if due {
		if err := l.rebuild(ctx, lec.AccessCode); err != nil {
			l.logger.Warn("unanswered rebuild failed", zap.String("lecture_code", lec.AccessCode), zap.Error(err))
		}
	}
	return l.tracker.Pages(ctx, lec.AccessCode)
}

func (l *Ledger) rebuild(ctx context.Context, code string) error {
	return l.tracker.Rebuild(ctx, code, func(ctx context.Context) (map[int][]models.Question, error) {
		all, err := l.store.ListAll(ctx, code)
		if err != nil {
			return nil, err
		}
		byPage := make(map[int][]models.Question, len(all))
		for page, thread := range all {
			byPage[page] = thread.Questions
		}
		return byPage, nil
	})
}
