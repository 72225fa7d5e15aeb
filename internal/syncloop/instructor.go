package syncloop

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
)

// InstructorSnapshot is what the presenter's screen shows.
type InstructorSnapshot struct {
	Page       int
	Pages      map[int]*models.PageThread
	Unanswered []int
	Poll       *models.Poll
	Status     models.PollStatus
	Remaining  time.Duration
	// ShowingResults is true once the current poll's results were brought up.
	ShowingResults bool
}

// InstructorView follows the whole lecture's Q&A, the unanswered-page rail and the current poll.
type InstructorView struct {
	*base
	mu   sync.Mutex
	snap InstructorSnapshot
}

// NewInstructorView creates a presenter view of lecture code. flags may be nil for an in-memory store.
func NewInstructorView(code string, src Source, flags FlagStore, opts ...Option) *InstructorView {
	return &InstructorView{base: newBase(code, src, flags, InstructorQAInterval, opts)}
}

// Run polls until ctx is cancelled or Close is called.
func (v *InstructorView) Run(ctx context.Context) error {
	return v.run(ctx, v.qaTick, v.pollTick)
}

// Snapshot returns a copy of the latest state.
func (v *InstructorView) Snapshot() InstructorSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := v.snap
	snap.Unanswered = append([]int(nil), v.snap.Unanswered...)
	return snap
}

// Navigate recomputes the unanswered marker of the page being left, then switches to page.
// A failed recompute is logged; the switch still happens.
func (v *InstructorView) Navigate(ctx context.Context, page int) {
	if page < 0 {
		return
	}
	v.mu.Lock()
	leaving := v.snap.Page
	v.mu.Unlock()
	if leaving == page {
		return
	}
	if _, err := v.src.Recompute(ctx, v.code, leaving); err != nil {
		v.logger.Warn("recompute on page leave failed", zap.Int("page", leaving), zap.Error(err))
	}
	v.mu.Lock()
	v.snap.Page = page
	v.mu.Unlock()
	v.triggerQA()
}

// DisableResults stops closed polls from bringing up their results automatically.
func (v *InstructorView) DisableResults() {
	v.setFlag(KeyResultsDisabled)
}

// EnableResults undoes DisableResults.
func (v *InstructorView) EnableResults() {
	if err := v.flags.Delete(KeyResultsDisabled); err != nil {
		v.logger.Warn("write viewer flag failed", zap.String("key", KeyResultsDisabled), zap.Error(err))
	}
}

// ShowResults brings up the current poll's results on demand, regardless of DisableResults.
func (v *InstructorView) ShowResults() *models.Poll {
	v.mu.Lock()
	p := v.snap.Poll
	if p != nil {
		v.snap.ShowingResults = true
	}
	v.mu.Unlock()
	if p == nil {
		return nil
	}
	v.setFlag(ResultsShownKey(p.ID))
	v.emit([]Event{{Kind: EventShowResults, Poll: p}})
	return p
}

func (v *InstructorView) qaTick(ctx context.Context) {
	pages, err := v.src.AllPages(ctx, v.code)
	if err != nil {
		v.readFailed("all pages", err)
		return
	}
	unanswered, err := v.src.UnansweredPages(ctx, v.code)
	if err != nil {
		v.readFailed("unanswered pages", err)
		return
	}
	if unanswered == nil {
		unanswered = []int{}
	}

	v.mu.Lock()
	changed := !reflect.DeepEqual(v.snap.Pages, pages) || !reflect.DeepEqual(v.snap.Unanswered, unanswered)
	v.snap.Pages = pages
	v.snap.Unanswered = unanswered
	page := v.snap.Page
	v.mu.Unlock()

	if changed {
		v.emit([]Event{{Kind: EventPages, Page: page, Pages: pages, Unanswered: unanswered}})
	}
}

func (v *InstructorView) pollTick(ctx context.Context) {
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
func (v *InstructorView) applyPoll(p *models.Poll, now time.Time) []Event {
	prev := v.snap.Poll
	if p == nil || prev == nil || prev.ID != p.ID {
		v.snap.ShowingResults = false
	}
	v.snap.Poll = p
	v.snap.Status = ""
	v.snap.Remaining = 0
	if p == nil {
		return nil
	}

	v.snap.Status = p.Status(now)
	v.snap.Remaining = p.Remaining(now)
	switch v.snap.Status {
	case models.PollActive:
		return []Event{{Kind: EventCountdown, Poll: p, Remaining: v.snap.Remaining}}
	case models.PollClosed:
		if v.flag(ResultsShownKey(p.ID)) || v.flag(KeyResultsDisabled) {
			return nil
		}
		v.setFlag(ResultsShownKey(p.ID))
		v.snap.ShowingResults = true
		v.logger.Debug("poll closed, showing results", zap.String("poll_id", p.ID.String()))
		return []Event{{Kind: EventShowResults, Poll: p}}
	}
	return nil
}
