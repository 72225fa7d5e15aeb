package qa

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/unanswered"
	"github.com/lecturelink/backend/pkg/apperr"
)

type memStore struct {
	mu        sync.Mutex
	nextID    int64
	questions []models.Question
	comments  []models.Comment
}

func (s *memStore) InsertQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	q.ID = s.nextID
	q.CreatedAt = time.Now()
	s.questions = append(s.questions, *q)
	return nil
}

func (s *memStore) InsertComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = time.Now()
	s.comments = append(s.comments, *c)
	return nil
}

func (s *memStore) Acknowledge(_ context.Context, code string, page int, id int64) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.questions {
		q := &s.questions[i]
		if q.ID == id && q.LectureCode == code && q.PageIndex == page {
			q.Acknowledged = true
			cp := *q
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("question not found")
}

func (s *memStore) QuestionsByPage(_ context.Context, code string, page int) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Question{}
	for _, q := range s.questions {
		if q.LectureCode == code && q.PageIndex == page {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *memStore) ListPage(ctx context.Context, code string, page int) (*models.PageThread, error) {
	qs, _ := s.QuestionsByPage(ctx, code, page)
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := []models.Comment{}
	for _, c := range s.comments {
		if c.LectureCode == code && c.PageIndex == page {
			cs = append(cs, c)
		}
	}
	return &models.PageThread{Questions: qs, Comments: cs}, nil
}

func (s *memStore) ListAll(_ context.Context, code string) (map[int]*models.PageThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var qs []models.Question
	var cs []models.Comment
	for _, q := range s.questions {
		if q.LectureCode == code {
			qs = append(qs, q)
		}
	}
	for _, c := range s.comments {
		if c.LectureCode == code {
			cs = append(cs, c)
		}
	}
	return groupByPage(qs, cs), nil
}

type stubLectures map[string]*models.Lecture

func (s stubLectures) Lookup(_ context.Context, code string) (*models.Lecture, error) {
	if l, ok := s[code]; ok {
		return l, nil
	}
	return nil, apperr.NotFoundf("lecture not found")
}

var owner = uuid.MustParse("11111111-1111-4111-8111-111111111111")

func testLectures() stubLectures {
	return stubLectures{"ABC123": {AccessCode: "ABC123", InstructorID: owner, PageCount: 5}}
}

func newTestLedger(t *testing.T) (*Ledger, *unanswered.Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tr := unanswered.NewTracker(rdb, nil)
	return NewLedger(&memStore{}, tr, testLectures(), 0, nil, nil), tr, mr
}

// assertUnansweredInvariant checks page ∈ set iff some question on it is unacknowledged. It reads
// the tracker directly so the rebuild on read cannot hide a wrong recompute.
func assertUnansweredInvariant(t *testing.T, l *Ledger, tr *unanswered.Tracker, code string) {
	t.Helper()
	ctx := context.Background()
	all, err := l.ListAll(ctx, code)
	require.NoError(t, err)
	want := []int{}
	for page, thread := range all {
		if models.HasUnanswered(thread.Questions) {
			want = append(want, page)
		}
	}
	sort.Ints(want)
	got, err := tr.Pages(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPostAndAcknowledgeKeepInvariant(t *testing.T) {
	l, tr, _ := newTestLedger(t)
	ctx := context.Background()

	q1, err := l.PostQuestion(ctx, "abc123", 1, "  What is a monad?  ")
	require.NoError(t, err)
	assert.Equal(t, "What is a monad?", q1.Text)
	assert.False(t, q1.Acknowledged)
	assertUnansweredInvariant(t, l, tr, "ABC123")

	q2, err := l.PostQuestion(ctx, "ABC123", 1, "And a functor?")
	require.NoError(t, err)
	_, err = l.PostQuestion(ctx, "ABC123", 3, "Page three?")
	require.NoError(t, err)
	_, err = l.PostComment(ctx, "ABC123", 4, "Nice slide")
	require.NoError(t, err)
	assertUnansweredInvariant(t, l, tr, "ABC123")

	_, err = l.Acknowledge(ctx, "ABC123", 1, q1.ID, owner)
	require.NoError(t, err)
	assertUnansweredInvariant(t, l, tr, "ABC123")

	got, err := l.Acknowledge(ctx, "ABC123", 1, q2.ID, owner)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assertUnansweredInvariant(t, l, tr, "ABC123")

	pages, err := l.UnansweredPages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, pages)
}

func TestAcknowledgeIsMonotonic(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	q, err := l.PostQuestion(ctx, "ABC123", 0, "Q")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := l.Acknowledge(ctx, "ABC123", 0, q.ID, owner)
		require.NoError(t, err)
		assert.True(t, got.Acknowledged)
	}
	thread, err := l.ListByPage(ctx, "ABC123", 0)
	require.NoError(t, err)
	require.Len(t, thread.Questions, 1)
	assert.True(t, thread.Questions[0].Acknowledged)
}

func TestAcknowledgeErrors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	q, err := l.PostQuestion(ctx, "ABC123", 2, "Q")
	require.NoError(t, err)

	_, err = l.Acknowledge(ctx, "ABC123", 2, q.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = l.Acknowledge(ctx, "ABC123", 1, q.ID, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "wrong page")
	_, err = l.Acknowledge(ctx, "ABC123", 2, 999, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	long := make([]rune, DefaultMaxTextLength+1)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name string
		code string
		page int
		text string
		kind error
	}{
		{"unknown lecture", "ZZZ999", 0, "hi", apperr.ErrNotFound},
		{"negative page", "ABC123", -1, "hi", apperr.ErrValidation},
		{"page past end", "ABC123", 5, "hi", apperr.ErrValidation},
		{"blank text", "ABC123", 0, "   ", apperr.ErrValidation},
		{"too long", "ABC123", 0, string(long), apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.PostQuestion(ctx, tt.code, tt.page, tt.text)
			assert.ErrorIs(t, err, tt.kind)
			_, err = l.PostComment(ctx, tt.code, tt.page, tt.text)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	exact := string(long[:DefaultMaxTextLength])
	_, err := l.PostQuestion(ctx, "ABC123", 0, exact)
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestListOrder(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	for _, text := range []string{"first", "second", "third"} {
		_, err := l.PostQuestion(ctx, "ABC123", 0, text)
		require.NoError(t, err)
	}
	thread, err := l.ListByPage(ctx, "ABC123", 0)
	require.NoError(t, err)
	require.Len(t, thread.Questions, 3)
	for i := 1; i < len(thread.Questions); i++ {
		assert.Less(t, thread.Questions[i-1].ID, thread.Questions[i].ID)
	}
}

func TestUnansweredReadRepairsDrift(t *testing.T) {
	l, tr, mr := newTestLedger(t)
	ctx := context.Background()
	_, err := l.PostQuestion(ctx, "ABC123", 2, "Q")
	require.NoError(t, err)

	pages, err := l.UnansweredPages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)

	// lose page 2 and invent page 4 behind the ledger's back
	_, err = mr.SRem(unanswered.Key("ABC123"), "2")
	require.NoError(t, err)
	_, err = mr.SAdd(unanswered.Key("ABC123"), "4")
	require.NoError(t, err)

	pages, err = l.UnansweredPages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, pages, "no rebuild before the interval passes")

	mr.FastForward(unanswered.DefaultRebuildInterval)
	pages, err = l.UnansweredPages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)
	assertUnansweredInvariant(t, l, tr, "ABC123")

	open, err := l.RecomputePage(ctx, "ABC123", 2)
	require.NoError(t, err)
	assert.True(t, open)
}

// pausingTracker holds the next Apply until released, so a test can interleave another write
// between a recompute's read and its write.
type pausingTracker struct {
	*unanswered.Tracker
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingTracker) Apply(ctx context.Context, code string, page int, version int64, qs []models.Question) (bool, bool, error) {
	if p.armed.CompareAndSwap(true, false) {
		close(p.paused)
		<-p.release
	}
	return p.Tracker.Apply(ctx, code, page, version, qs)
}

func TestAcknowledgeRacingNewQuestionKeepsPageUnanswered(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tr := &pausingTracker{
		Tracker: unanswered.NewTracker(rdb, nil),
		paused:  make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLedger(&memStore{}, tr, testLectures(), 0, nil, nil)
	ctx := context.Background()

	q1, err := l.PostQuestion(ctx, "ABC123", 2, "first")
	require.NoError(t, err)

	tr.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := l.Acknowledge(ctx, "ABC123", 2, q1.ID, owner)
		done <- err
	}()
	select {
	case <-tr.paused:
	case <-time.After(time.Second):
		t.Fatal("acknowledge never reached the tracker")
	}

	// the acknowledge has read a fully answered page; a new question lands before it writes
	_, err = l.PostQuestion(ctx, "ABC123", 2, "second")
	require.NoError(t, err)
	close(tr.release)
	require.NoError(t, <-done)

	pages, err := tr.Pages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)
	assertUnansweredInvariant(t, l, tr.Tracker, "ABC123")
}

type failingTracker struct{}

func (failingTracker) Begin(context.Context, string, int) (int64, error) {
	return 0, errors.New("redis down")
}
func (failingTracker) Apply(context.Context, string, int, int64, []models.Question) (bool, bool, error) {
	return false, false, errors.New("redis down")
}
func (failingTracker) RebuildDue(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingTracker) Rebuild(context.Context, string, func(context.Context) (map[int][]models.Question, error)) error {
	return errors.New("redis down")
}
func (failingTracker) Pages(context.Context, string) ([]int, error) { return nil, errors.New("redis down") }

func TestTrackerFailureDoesNotFailWrite(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLedger(&memStore{}, failingTracker{}, testLectures(), 0, nil, zap.New(core))

	q, err := l.PostQuestion(context.Background(), "ABC123", 0, "still saved")
	require.NoError(t, err)
	assert.NotZero(t, q.ID)
	assert.Equal(t, 1, logs.FilterMessage("unanswered recompute failed").Len())
}
