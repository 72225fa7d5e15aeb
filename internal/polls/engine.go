package polls

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/metrics"
)

// Store persists polls. Transition runs fn against a locked copy of the poll and the other polls
// of its lecture, and persists the poll only if fn returns nil.
type Store interface {
	Create(ctx context.Context, p *models.Poll) error
	Get(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	List(ctx context.Context, f Filter) ([]models.Poll, error)
	Current(ctx context.Context, lectureCode string) (*models.Poll, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, fn func(p *models.Poll, lecture []models.Poll) error) (*models.Poll, error)
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	InstructorID string
	LectureCode  string
}

// OptionText accepts either "text" or {"text": "..."} on the wire.
type OptionText string

func (o *OptionText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = OptionText(s)
		return nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*o = OptionText(obj.Text)
	return nil
}

// CreateInput is the payload for Create.
type CreateInput struct {
	InstructorID    string       `json:"instructorId"`
	LectureCode     string       `json:"lectureCode"`
	Question        string       `json:"question"`
	Options         []OptionText `json:"options"`
	DurationSeconds int          `json:"durationSeconds"`
}

// UpdateInput is the payload for Update. Nil fields are left unchanged.
type UpdateInput struct {
	Question        *string      `json:"question"`
	Options         []OptionText `json:"options"`
	DurationSeconds *int         `json:"durationSeconds"`
}

// Engine owns the poll lifecycle: Draft until activated, Active until endsAt, then Closed.
type Engine struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records poll activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a poll engine.
func NewEngine(store Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeCode upper-cases and trims a lecture access code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cleanOptions(in []OptionText) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if t := strings.TrimSpace(string(o)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Create stores a new Draft poll.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.Poll, error) {
	instructorID := strings.TrimSpace(in.InstructorID)
	if instructorID == "" {
		return nil, apperr.Validationf("instructorId is required")
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, apperr.Validationf("question is required")
	}
	texts := cleanOptions(in.Options)
	if len(texts) < 2 {
		return nil, apperr.Validationf("at least 2 non-empty options are required")
	}
	if !models.ValidPollDuration(in.DurationSeconds) {
		return nil, apperr.Validationf("durationSeconds must be one of %v", models.AllowedPollDurations)
	}

	p := &models.Poll{
		InstructorID:    instructorID,
		LectureCode:     NormalizeCode(in.LectureCode),
		Question:        question,
		Options:         make([]models.PollOption, len(texts)),
		DurationSeconds: in.DurationSeconds,
	}
	for i, t := range texts {
		p.Options[i] = models.PollOption{Text: t}
	}
	if err := e.store.Create(ctx, p); err != nil {
		return nil, err
	}
	e.metrics.PollCreated()
	e.logger.Debug("poll created", zap.String("poll_id", p.ID.String()), zap.String("lecture_code", p.LectureCode))
	return p, nil
}

// Get returns a poll by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	return e.store.Get(ctx, id)
}

// List returns polls matching f, newest first.
func (e *Engine) List(ctx context.Context, f Filter) ([]models.Poll, error) {
	f.LectureCode = NormalizeCode(f.LectureCode)
	f.InstructorID = strings.TrimSpace(f.InstructorID)
	return e.store.List(ctx, f)
}

// Current returns the most recently activated poll of a lecture, or nil if none was ever activated.
func (e *Engine) Current(ctx context.Context, lectureCode string) (*models.Poll, error) {
	code := NormalizeCode(lectureCode)
	if code == "" {
		return nil, apperr.Validationf("lecture code is required")
	}
	return e.store.Current(ctx, code)
}

// Update edits a Draft poll.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Poll, error) {
	var (
		question string
		texts    []string
	)
	if in.Question != nil {
		question = strings.TrimSpace(*in.Question)
		if question == "" {
			return nil, apperr.Validationf("question must not be empty")
		}
	}
	if in.Options != nil {
		texts = cleanOptions(in.Options)
		if len(texts) < 2 {
			return nil, apperr.Validationf("at least 2 non-empty options are required")
		}
	}
	if in.DurationSeconds != nil && !models.ValidPollDuration(*in.DurationSeconds) {
		return nil, apperr.Validationf("durationSeconds must be one of %v", models.AllowedPollDurations)
	}

	now := e.now()
	return e.store.Transition(ctx, id, func(p *models.Poll, _ []models.Poll) error {
		if p.Status(now) != models.PollDraft {
			return apperr.Conflictf("only draft polls can be edited")
		}
		if in.Question != nil {
			p.Question = question
		}
		if texts != nil {
			opts := make([]models.PollOption, len(texts))
			for i, t := range texts {
				opts[i] = models.PollOption{Text: t}
				if i < len(p.Options) {
					opts[i].Votes = p.Options[i].Votes
				}
			}
			p.Options = opts
		}
		if in.DurationSeconds != nil {
			p.DurationSeconds = *in.DurationSeconds
		}
		return nil
	})
}

// Delete removes a poll and reports whether it existed.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return e.store.Delete(ctx, id)
}

// Activate starts a Draft poll: isActive=true, endsAt=now+duration. A poll activates at most once and
// a lecture has at most one Active poll.
func (e *Engine) Activate(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	now := e.now()
	p, err := e.store.Transition(ctx, id, func(p *models.Poll, lecture []models.Poll) error {
		switch p.Status(now) {
		case models.PollActive:
			return apperr.Conflictf("poll is already active")
		case models.PollClosed:
			return apperr.Conflictf("poll is closed and cannot be reactivated")
		}
		for i := range lecture {
			if lecture[i].Status(now) == models.PollActive {
				return apperr.Conflictf("another poll is active in lecture %s", p.LectureCode)
			}
		}
		endsAt := now.Add(time.Duration(p.DurationSeconds) * time.Second)
		activatedAt := now
		p.IsActive = true
		p.ActivatedAt = &activatedAt
		p.EndsAt = &endsAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.PollActivated()
	e.logger.Info("poll activated", zap.String("poll_id", p.ID.String()), zap.String("lecture_code", p.LectureCode), zap.Time("ends_at", *p.EndsAt))
	return p, nil
}

// Vote adds one vote to the option at index. The expiry check and the increment are atomic.
func (e *Engine) Vote(ctx context.Context, id uuid.UUID, index int) (*models.Poll, error) {
	p, err := e.store.Transition(ctx, id, func(p *models.Poll, _ []models.Poll) error {
		if index < 0 || index >= len(p.Options) {
			return apperr.Validationf("optionIndex %d out of range", index)
		}
		now := e.now()
		switch p.Status(now) {
		case models.PollDraft:
			return apperr.Conflictf("poll is not active")
		case models.PollClosed:
			return apperr.Expiredf("poll has ended")
		}
		p.Options[index].Votes++
		return nil
	})
	e.metrics.Vote(err == nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}
