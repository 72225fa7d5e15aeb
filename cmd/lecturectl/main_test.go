package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/syncloop"
)

type fakeAPI struct {
	mu        sync.Mutex
	poll      *models.Poll
	questions []models.Question
	acked     []int64
}

func (f *fakeAPI) CurrentPoll(context.Context, string) (*models.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poll == nil {
		return nil, nil
	}
	return f.poll.Clone(), nil
}

func (f *fakeAPI) Vote(_ context.Context, _ uuid.UUID, idx int) (*models.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll.Options[idx].Votes++
	return f.poll.Clone(), nil
}

func (f *fakeAPI) Page(context.Context, string, int) (*models.PageThread, error) {
	return &models.PageThread{Questions: []models.Question{}, Comments: []models.Comment{}}, nil
}

func (f *fakeAPI) AllPages(context.Context, string) (map[int]*models.PageThread, error) {
	return map[int]*models.PageThread{}, nil
}

func (f *fakeAPI) UnansweredPages(context.Context, string) ([]int, error) { return []int{}, nil }

func (f *fakeAPI) Recompute(context.Context, string, int) (bool, error) { return false, nil }

func (f *fakeAPI) PostQuestion(_ context.Context, code string, page int, text string) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := models.Question{ID: int64(len(f.questions) + 1), LectureCode: code, PageIndex: page, Text: text}
	f.questions = append(f.questions, q)
	return &q, nil
}

func (f *fakeAPI) PostComment(_ context.Context, code string, page int, text string) (*models.Comment, error) {
	return &models.Comment{ID: 1, LectureCode: code, PageIndex: page, Text: text}, nil
}

func (f *fakeAPI) Acknowledge(_ context.Context, _ string, page int, id int64) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return &models.Question{ID: id, PageIndex: page, Acknowledged: true}, nil
}

func activePoll() *models.Poll {
	now := time.Now()
	ends := now.Add(time.Minute)
	return &models.Poll{
		ID:              uuid.New(),
		Question:        "Best sort?",
		Options:         []models.PollOption{{Text: "quick"}, {Text: "merge"}},
		DurationSeconds: 60,
		IsActive:        true,
		ActivatedAt:     &now,
		EndsAt:          &ends,
	}
}

func TestProfileSaveKeepsFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, p.BaseURL)

	p.Token = "jwt"
	p.VoterID = "cli-1"
	require.NoError(t, p.Save())

	id := uuid.New()
	flags := syncloop.NewFileFlags(path)
	require.NoError(t, flags.Set(syncloop.VotedKey(id)))

	p.Token = ""
	require.NoError(t, p.Save())

	reloaded, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Token)
	assert.Equal(t, "cli-1", reloaded.VoterID)
	voted, err := flags.Get(syncloop.VotedKey(id))
	require.NoError(t, err)
	assert.True(t, voted, "saving the profile must not drop viewer flags")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFormatPoll(t *testing.T) {
	p := activePoll()
	p.Options[0].Votes = 3
	p.Options[1].Votes = 1
	out := formatPoll(p, *p.ActivatedAt)
	assert.Contains(t, out, "[active, 1:00 left]")
	assert.Contains(t, out, "1) quick")
	assert.Contains(t, out, strings.Repeat("#", 15)+strings.Repeat(".", 5)+" 3")
}

func TestFormatThreadMarksUnanswered(t *testing.T) {
	out := formatThread(2, &models.PageThread{
		Questions: []models.Question{{ID: 1, Text: "open"}, {ID: 2, Text: "done", Acknowledged: true}},
		Comments:  []models.Comment{{ID: 5, Text: "nice"}},
	})
	assert.Contains(t, out, " * Q#1 open")
	assert.Contains(t, out, "   Q#2 done")
	assert.Contains(t, out, "C#5 nice")
	assert.Contains(t, formatThread(0, nil), "(nothing yet)")
	assert.Equal(t, "none", formatPages(nil))
	assert.Equal(t, "1, 4", formatPages([]int{1, 4}))
}

func runLines(t *testing.T, handle lineHandler, input string) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var said []string
	err := readCommands(ctx, strings.NewReader(input), handle, func(s string) { said = append(said, s) })
	return said, err
}

func TestStudentCommands(t *testing.T) {
	api := &fakeAPI{poll: activePoll()}
	v := syncloop.NewStudentView("ABC123", api, syncloop.NewMemoryFlags())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()
	require.Eventually(t, func() bool { return v.Snapshot().Prompt }, time.Second, 5*time.Millisecond)

	said, err := runLines(t, studentCommands(v, api, "ABC123"),
		"page 3\nask why is it n log n?\nvote 2\nvote 2\ndance\nquit\n")
	assert.ErrorIs(t, err, errQuit)
	assert.Equal(t, []string{
		"Now on page 3",
		"Question #1 posted",
		"error: " + syncloop.ErrAlreadyVoted.Error(),
		`error: unknown command "dance"`,
	}, said)
	require.Len(t, api.questions, 1)
	assert.Equal(t, 3, api.questions[0].PageIndex)
	p, err := api.CurrentPoll(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Options[1].Votes)
}

func TestInstructorCommands(t *testing.T) {
	api := &fakeAPI{}
	v := syncloop.NewInstructorView("ABC123", api, syncloop.NewMemoryFlags())

	said, err := runLines(t, instructorCommands(v, api, "ABC123"), "page 2\nack 9\nack x\nresults\nhide\nexit\n")
	assert.ErrorIs(t, err, errQuit)
	assert.Equal(t, []string{
		"Now on page 2",
		"Acknowledged #9",
		"error: ack takes a question id",
		"No poll to show",
		"Results will not pop up automatically",
	}, said)
	assert.Equal(t, []int64{9}, api.acked)
}

func TestReadCommandsReturnsOnEOF(t *testing.T) {
	var handled []string
	handle := func(_ context.Context, line string) (string, error) {
		handled = append(handled, line)
		return "ok", nil
	}
	done := make(chan error, 1)
	var said []string
	go func() {
		done <- readCommands(context.Background(), strings.NewReader("page 1\n\nvote 2\n"), handle,
			func(s string) { said = append(said, s) })
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("readCommands kept running after stdin closed")
	}
	assert.Equal(t, []string{"page 1", "vote 2"}, handled)
	assert.Equal(t, []string{"ok", "ok"}, said)
}

func TestReadCommandsStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		done <- readCommands(ctx, r, func(context.Context, string) (string, error) { return "", nil }, func(string) {})
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("readCommands did not return after cancel")
	}
}
