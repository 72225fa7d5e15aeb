package models

import (
	"time"

	"github.com/google/uuid"
)

// PollStatus is derived from (IsActive, EndsAt, now) and never stored.
type PollStatus string

const (
	PollDraft  PollStatus = "draft"
	PollActive PollStatus = "active"
	PollClosed PollStatus = "closed"
)

// AllowedPollDurations lists the durations (seconds) a poll may run for.
var AllowedPollDurations = []int{30, 60, 90, 120}

// ValidPollDuration reports whether seconds is one of AllowedPollDurations.
func ValidPollDuration(seconds int) bool {
	for _, d := range AllowedPollDurations {
		if d == seconds {
			return true
		}
	}
	return false
}

// PollOption is one answer choice with its tally.
type PollOption struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll represents a timed multiple-choice poll scoped to a lecture access code.
type Poll struct {
	ID              uuid.UUID    `json:"id"`
	InstructorID    string       `json:"instructorId"`
	LectureCode     string       `json:"lectureCode,omitempty"`
	Question        string       `json:"question"`
	Options         []PollOption `json:"options"`
	DurationSeconds int          `json:"durationSeconds"`
	IsActive        bool         `json:"isActive"`
	CreatedAt       time.Time    `json:"createdAt"`
	ActivatedAt     *time.Time   `json:"activatedAt,omitempty"`
	EndsAt          *time.Time   `json:"endsAt"`
}

// Status derives the lifecycle state at time now.
func (p *Poll) Status(now time.Time) PollStatus {
	if !p.IsActive {
		return PollDraft
	}
	if p.EndsAt != nil && now.Before(*p.EndsAt) {
		return PollActive
	}
	return PollClosed
}

// Remaining returns the time left before EndsAt, or 0 when not active.
func (p *Poll) Remaining(now time.Time) time.Duration {
	if p.Status(now) != PollActive {
		return 0
	}
	return p.EndsAt.Sub(now)
}

// TotalVotes sums the votes of all options.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = append([]PollOption(nil), p.Options...)
	if p.EndsAt != nil {
		t := *p.EndsAt
		cp.EndsAt = &t
	}
	if p.ActivatedAt != nil {
		t := *p.ActivatedAt
		cp.ActivatedAt = &t
	}
	return &cp
}
