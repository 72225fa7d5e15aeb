package syncloop

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
)

// StudentSnapshot is what a student's screen shows.
type StudentSnapshot struct {
	Page      int
	Thread    *models.PageThread
	Poll      *models.Poll
	Status    models.PollStatus
	Remaining time.Duration
	// Prompt is true while the vote dialog is open.
	Prompt bool
}

// StudentView follows one page's Q&A thread and the lecture's current poll.
type StudentView struct {
	*base
	mu   sync.Mutex
	snap StudentSnapshot
}

// NewStudentView creates a student view of lecture code. flags may be nil for an in-memory store.
func NewStudentView(code string, src Source, flags FlagStore, opts ...Option) *StudentView {
	return &StudentView{base: newBase(code, src, flags, StudentQAInterval, opts)}
}

// Run polls until ctx is cancelled or Close is called.
func (v *StudentView) Run(ctx context.Context) error {
	return v.run(ctx, v.qaTick, v.pollTick)
}

// Snapshot returns a copy of the latest state.
func (v *StudentView) Snapshot() StudentSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// SetPage switches the followed page and refreshes its thread right away.
func (v *StudentView) SetPage(page int) {
	if page < 0 {
		return
	}
	v.mu.Lock()
	changed := v.snap.Page != page
	v.snap.Page = page
	if changed {
		v.snap.Thread = nil
	}
	v.mu.Unlock()
	if changed {
		v.triggerQA()
	}
}

func (v *StudentView) qaTick(ctx context.Context) {
	v.mu.Lock()
	page := v.snap.Page
	v.mu.Unlock()

	thread, err := v.src.Page(ctx, v.code, page)
	if err != nil {
		v.readFailed("page", err)
		return
	}

	v.mu.Lock()
	if v.snap.Page != page {
		// page switched mid-read; the triggered tick will fetch the new one
		v.mu.Unlock()
		return
	}
	changed := !reflect.DeepEqual(v.snap.Thread, thread)
	v.snap.Thread = thread
	v.mu.Unlock()

	if changed {
		v.emit([]Event{{Kind: EventThread, Page: page, Thread: thread}})
	}
}

func (v *StudentView) pollTick(ctx context.Context) {
	p, err := v.src.CurrentPoll(ctx, v.code)
	if err != nil {
		v.readFailed("current poll", err)
		return
	}
	now := v.now()

	v.mu.Lock()
	events := v.applyPoll(p, now)
	v.mu.Unlock()
	v.emit(events)
}

// applyPoll updates the snapshot from a freshly read poll. Caller holds v.mu.
func (v *StudentView) applyPoll(p *models.Poll, now time.Time) []Event {
	wasPrompt := v.snap.Prompt
	prev := v.snap.Poll

	v.snap.Poll = p
	v.snap.Status = ""
	v.snap.Remaining = 0
	v.snap.Prompt = false
	if p == nil {
		if wasPrompt {
			return []Event{{Kind: EventPollDismissed}}
		}
		return nil
	}

	v.snap.Status = p.Status(now)
	v.snap.Remaining = p.Remaining(now)
	if v.snap.Status == models.PollActive && v.snap.Remaining > 0 && !v.flag(VotedKey(p.ID)) {
		v.snap.Prompt = true
		return []Event{{Kind: EventPollPrompt, Poll: p, Remaining: v.snap.Remaining}}
	}
	if wasPrompt {
		ev := Event{Kind: EventPollDismissed}
		if prev != nil && prev.ID == p.ID {
			ev.Poll = p
		}
		return []Event{ev}
	}
	return nil
}

// Vote casts this viewer's vote. It refuses locally once the poll has ended on this viewer's clock.
func (v *StudentView) Vote(ctx context.Context, optionIndex int) (*models.Poll, error) {
	v.mu.Lock()
	p := v.snap.Poll
	v.mu.Unlock()
	if p == nil {
		return nil, ErrNoActivePoll
	}
	switch p.Status(v.now()) {
	case models.PollDraft:
		return nil, ErrNoActivePoll
	case models.PollClosed:
		return nil, ErrPollClosed
	}
	if v.flag(VotedKey(p.ID)) {
		return nil, ErrAlreadyVoted
	}

	updated, err := v.src.Vote(ctx, p.ID, optionIndex)
	if err != nil {
		return nil, err
	}
	v.setFlag(VotedKey(p.ID))
	v.logger.Debug("vote cast", zap.String("poll_id", p.ID.String()), zap.Int("option", optionIndex))

	v.mu.Lock()
	if v.snap.Poll != nil && v.snap.Poll.ID == updated.ID {
		v.snap.Poll = updated
		v.snap.Prompt = false
	}
	v.mu.Unlock()
	v.emit([]Event{{Kind: EventVoted, Poll: updated}})
	return updated, nil
}
