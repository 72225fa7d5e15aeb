package lectures

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/queue"
)

type memStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]models.Lecture
	retired map[uuid.UUID]bool
	reads   int
	tick    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		byID:    map[uuid.UUID]models.Lecture{},
		retired: map[uuid.UUID]bool{},
		tick:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID) - len(s.retired)
}

func (s *memStore) Create(_ context.Context, l *models.Lecture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.byID {
		if other.AccessCode == l.AccessCode {
			return ErrCodeTaken
		}
	}
	s.tick = s.tick.Add(time.Minute)
	l.CreatedAt = s.tick
	s.byID[l.ID] = *l
	return nil
}

func (s *memStore) GetByCode(_ context.Context, code string) (*models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	for id, l := range s.byID {
		if l.AccessCode == code && !s.retired[id] {
			cp := l
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("lecture not found")
}

func (s *memStore) ListByInstructor(_ context.Context, instructorID uuid.UUID) ([]models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Lecture{}
	for id, l := range s.byID {
		if l.InstructorID == instructorID && !s.retired[id] {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Retire(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok || s.retired[id] {
		return false, nil
	}
	s.retired[id] = true
	return true, nil
}

func (s *memStore) Release(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.retired[id] {
		return false, nil
	}
	delete(s.byID, id)
	delete(s.retired, id)
	return true, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (b *memBlobs) PutDocument(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *memBlobs) PresignDocument(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key + "?sig=1", nil
}

func (b *memBlobs) DeleteDocument(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

type recordingQueue struct {
	jobs []queue.LecturePurgePayload
}

func (q *recordingQueue) EnqueueLecturePurge(_ context.Context, p queue.LecturePurgePayload) error {
	q.jobs = append(q.jobs, p)
	return nil
}

type fixture struct {
	dir   *Directory
	store *memStore
	blobs *memBlobs
	queue *recordingQueue
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T, opts ...DirectoryOption) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := &fixture{
		store: newMemStore(),
		blobs: &memBlobs{objects: map[string][]byte{}},
		queue: &recordingQueue{},
		mr:    mr,
	}
	f.dir = NewDirectory(f.store, f.blobs, NewCache(rdb, time.Minute), f.queue, nil, opts...)
	return f
}

var owner = uuid.MustParse("22222222-2222-4222-8222-222222222222")

func upload(name, body string) CreateInput {
	return CreateInput{
		InstructorID: owner,
		FileName:     name,
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	}
}

func TestCreateAndLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := upload("Week 3 Slides.pdf", "%PDF-1.7")
	in.PageCount = 12
	l, err := f.dir.Create(ctx, in)
	require.NoError(t, err)
	assert.Len(t, l.AccessCode, CodeLength)
	assert.Equal(t, "Week 3 Slides", l.Title, "title falls back to the file name")
	assert.Equal(t, "application/pdf", l.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), f.blobs.objects[l.DocumentKey])
	assert.True(t, f.mr.Exists(CacheKey(l.AccessCode)))

	got, err := f.dir.Lookup(ctx, " "+strings.ToLower(l.AccessCode)+" ")
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, 12, got.PageCount)
	assert.Zero(t, f.store.reads, "served from cache")

	f.mr.FlushAll()
	_, err = f.dir.Lookup(ctx, l.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.reads)
	assert.True(t, f.mr.Exists(CacheKey(l.AccessCode)), "miss repopulates the cache")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, WithMaxUploadBytes(4))
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"bad type", upload("malware.exe", "MZ")},
		{"no file", upload("", "x")},
		{"empty", upload("a.pdf", "")},
		{"too large", upload("a.pdf", "12345")},
		{"negative pages", func() CreateInput { in := upload("a.pdf", "x"); in.PageCount = -1; return in }()},
		{"no instructor", func() CreateInput { in := upload("a.pdf", "x"); in.InstructorID = uuid.Nil; return in }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dir.Create(ctx, tt.in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Empty(t, f.blobs.objects)
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	f := newFixture(t, WithCodeGenerator(gen))
	ctx := context.Background()

	first, err := f.dir.Create(ctx, upload("a.txt", "a"))
	require.NoError(t, err)
	second, err := f.dir.Create(ctx, upload("b.txt", "b"))
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.AccessCode)
	assert.Equal(t, "BBBBBB", second.AccessCode)
}

func TestCreateGivesUpAndRemovesDocument(t *testing.T) {
	gen := func() (string, error) { return "SAME00", nil }
	f := newFixture(t, WithCodeGenerator(gen), WithCodeAttempts(3))
	ctx := context.Background()

	_, err := f.dir.Create(ctx, upload("a.pdf", "a"))
	require.NoError(t, err)
	_, err = f.dir.Create(ctx, upload("b.pdf", "b"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.blobs.objects, 1, "failed lecture's document is removed")
}

func TestCreateUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.putErr = errors.New("s3 down")
	_, err := f.dir.Create(context.Background(), upload("a.pdf", "a"))
	require.Error(t, err)
	assert.Empty(t, f.store.byID)
}

func TestDeleteOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.dir.Create(ctx, upload("a.pdf", "a"))
	require.NoError(t, err)

	err = f.dir.Delete(ctx, l.AccessCode, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, f.dir.Delete(ctx, l.AccessCode, owner))
	assert.False(t, f.mr.Exists(CacheKey(l.AccessCode)))
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, queue.LecturePurgePayload{LectureID: l.ID, AccessCode: l.AccessCode, DocumentKey: l.DocumentKey}, f.queue.jobs[0])

	_, err = f.dir.Lookup(ctx, l.AccessCode)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = f.dir.Delete(ctx, l.AccessCode, owner)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAndDeleteAllByInstructor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"one.pdf", "two.pdf"} {
		_, err := f.dir.Create(ctx, upload(name, "x"))
		require.NoError(t, err)
	}
	other := upload("theirs.pdf", "x")
	other.InstructorID = uuid.New()
	_, err := f.dir.Create(ctx, other)
	require.NoError(t, err)

	list, err := f.dir.ListByInstructor(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Title, "newest first")

	n, err := f.dir.DeleteAllByInstructor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.queue.jobs, 2)
	assert.Equal(t, 1, f.store.live())
	list, err = f.dir.ListByInstructor(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeletedCodeStaysReservedUntilReleased(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB", "AAAAAA"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	f := newFixture(t, WithCodeGenerator(gen))
	ctx := context.Background()

	old, err := f.dir.Create(ctx, upload("old.pdf", "a"))
	require.NoError(t, err)
	require.NoError(t, f.dir.Delete(ctx, old.AccessCode, owner))

	// the purge job for old has not run yet
	next, err := f.dir.Create(ctx, upload("next.pdf", "b"))
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", next.AccessCode)

	released, err := f.store.Release(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, released)
	reused, err := f.dir.Create(ctx, upload("reused.pdf", "c"))
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", reused.AccessCode)

	released, err = f.store.Release(ctx, next.ID)
	require.NoError(t, err)
	assert.False(t, released, "live lectures are never released")
}

func TestDocumentURL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithLinkTTL(5*time.Minute))
	f.dir.now = func() time.Time { return now }
	ctx := context.Background()
	l, err := f.dir.Create(ctx, upload("notes.docx", "doc"))
	require.NoError(t, err)

	link, err := f.dir.DocumentURL(ctx, l.AccessCode)
	require.NoError(t, err)
	assert.Contains(t, link.URL, l.DocumentKey)
	assert.Equal(t, now.Add(5*time.Minute), link.ExpiresAt)

	_, err = f.dir.DocumentURL(ctx, "NOPE00")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLookupRejectsBlankCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.dir.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLookupSurvivesBrokenCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.dir.Create(ctx, upload("a.pdf", "abc"))
	require.NoError(t, err)
	f.mr.Set(CacheKey(l.AccessCode), "{not json")

	got, err := f.dir.Lookup(ctx, l.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
}
