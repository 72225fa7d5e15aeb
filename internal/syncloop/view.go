package syncloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lecturelink/backend/internal/models"
)

// Default cadences. Poll state is read every second because the countdown and the
// closed → results transition need second-level precision.
const (
	StudentQAInterval    = 3 * time.Second
	InstructorQAInterval = 2 * time.Second
	PollInterval         = time.Second
)

var (
	// ErrNoActivePoll is returned by Vote when the view has no poll to vote in.
	ErrNoActivePoll = errors.New("no active poll")
	// ErrPollClosed is returned by Vote once the poll's end time has passed on this viewer's clock.
	ErrPollClosed = errors.New("poll is closed")
	// ErrAlreadyVoted is returned by Vote when this viewer's flags record a previous vote.
	ErrAlreadyVoted = errors.New("already voted in this poll")
	// ErrClosed is returned by Run on a view that was already closed.
	ErrClosed = errors.New("view closed")
)

// Source is the shared state a view reads. *client.Client satisfies it.
type Source interface {
	CurrentPoll(ctx context.Context, code string) (*models.Poll, error)
	Vote(ctx context.Context, pollID uuid.UUID, optionIndex int) (*models.Poll, error)
	Page(ctx context.Context, code string, page int) (*models.PageThread, error)
	AllPages(ctx context.Context, code string) (map[int]*models.PageThread, error)
	UnansweredPages(ctx context.Context, code string) ([]int, error)
	Recompute(ctx context.Context, code string, page int) (bool, error)
}

// EventKind names what changed in a view.
type EventKind string

const (
	EventPollPrompt    EventKind = "poll_prompt"
	EventPollDismissed EventKind = "poll_dismissed"
	EventVoted         EventKind = "voted"
	EventCountdown     EventKind = "countdown"
	EventShowResults   EventKind = "show_results"
	EventThread        EventKind = "thread"
	EventPages         EventKind = "pages"
)

// Event is delivered to a view's listener. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind
	Poll       *models.Poll
	Remaining  time.Duration
	Page       int
	Thread     *models.PageThread
	Pages      map[int]*models.PageThread
	Unanswered []int
}

// Option configures a view.
type Option func(*base)

// WithClock replaces time.Now for poll status derivation.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLogger sets the view's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithListener receives every event. It is called outside the view's lock.
func WithListener(fn func(Event)) Option {
	return func(b *base) { b.listener = fn }
}

// WithIntervals overrides the Q&A and poll cadences. Zero keeps the default.
func WithIntervals(qa, poll time.Duration) Option {
	return func(b *base) {
		if qa > 0 {
			b.qaInterval = qa
		}
		if poll > 0 {
			b.pollInterval = poll
		}
	}
}

// base holds what student and instructor views share: two tasks under one lifetime.
type base struct {
	code         string
	src          Source
	flags        FlagStore
	logger       *zap.Logger
	listener     func(Event)
	now          func() time.Time
	qaInterval   time.Duration
	pollInterval time.Duration

	qaTask   *Task
	pollTask *Task

	life   sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func newBase(code string, src Source, flags FlagStore, qaInterval time.Duration, opts []Option) *base {
	if flags == nil {
		flags = NewMemoryFlags()
	}
	b := &base{
		code:         code,
		src:          src,
		flags:        flags,
		logger:       zap.NewNop(),
		now:          time.Now,
		qaInterval:   qaInterval,
		pollInterval: PollInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("lecture_code", code))
	return b
}

func (b *base) emit(events []Event) {
	if b.listener == nil {
		return
	}
	for _, ev := range events {
		b.listener(ev)
	}
}

func (b *base) flag(key string) bool {
	ok, err := b.flags.Get(key)
	if err != nil {
		b.logger.Warn("read viewer flag failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (b *base) setFlag(key string) {
	if err := b.flags.Set(key); err != nil {
		b.logger.Warn("write viewer flag failed", zap.String("key", key), zap.Error(err))
	}
}

// readFailed records a swallowed read error; the next tick retries.
func (b *base) readFailed(what string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	b.logger.Debug("sync read failed, keeping last state", zap.String("read", what), zap.Error(err))
}

// run starts both tasks and blocks until ctx is done or Close is called.
func (b *base) run(ctx context.Context, qaTick, pollTick func(context.Context)) error {
	b.life.Lock()
	if b.closed {
		b.life.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.qaTask = NewTask("qa", b.qaInterval, qaTick, b.logger)
	b.pollTask = NewTask("poll", b.pollInterval, pollTick, b.logger)
	b.life.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.qaTask.Run(gctx) })
	g.Go(func() error { return b.pollTask.Run(gctx) })
	return g.Wait()
}

// triggerQA asks the Q&A task for an immediate refresh when the view is running.
func (b *base) triggerQA() {
	b.life.Lock()
	t := b.qaTask
	b.life.Unlock()
	if t != nil {
		t.Trigger()
	}
}

// Close stops the view's tasks. Run returns once they have exited.
func (b *base) Close() {
	b.life.Lock()
	defer b.life.Unlock()
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
}
