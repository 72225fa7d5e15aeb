package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/polls"
	"github.com/lecturelink/backend/pkg/response"
)

// LectureLookup resolves access codes.
type LectureLookup interface {
	Lookup(ctx context.Context, code string) (*models.Lecture, error)
}

// QACounter counts a lecture's Q&A rows. *qa.Repository satisfies it.
type QACounter interface {
	Counts(ctx context.Context, code string) (questions, acknowledged, comments int, err error)
}

// PollLister lists polls. *polls.Engine satisfies it.
type PollLister interface {
	List(ctx context.Context, f polls.Filter) ([]models.Poll, error)
}

// UnansweredPages reads the unanswered-page set. *unanswered.Tracker satisfies it.
type UnansweredPages interface {
	Pages(ctx context.Context, code string) ([]int, error)
}

// Handler handles GET /lectures/:code/summary.
type Handler struct {
	lectures   LectureLookup
	qa         QACounter
	polls      PollLister
	unanswered UnansweredPages
}

// NewHandler creates an analytics handler.
func NewHandler(lectures LectureLookup, qa QACounter, polls PollLister, unanswered UnansweredPages) *Handler {
	return &Handler{lectures: lectures, qa: qa, polls: polls, unanswered: unanswered}
}

// SummaryResponse is the JSON shape of a lecture's activity summary.
type SummaryResponse struct {
	AccessCode        string  `json:"accessCode"`
	Title             string  `json:"title"`
	QuestionsCount    int     `json:"questionsCount"`
	AcknowledgedCount int     `json:"acknowledgedCount"`
	CommentsCount     int     `json:"commentsCount"`
	PollsCount        int     `json:"pollsCount"`
	VotesCount        int     `json:"votesCount"`
	UnansweredPages   []int   `json:"unansweredPages"`
	AnsweredPercent   float64 `json:"answeredPercent"`
}

// Summarize collects the counters of one lecture.
func (h *Handler) Summarize(ctx context.Context, l *models.Lecture) (*SummaryResponse, error) {
	out := &SummaryResponse{AccessCode: l.AccessCode, Title: l.Title}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, a, c, err := h.qa.Counts(gctx, l.AccessCode)
		out.QuestionsCount, out.AcknowledgedCount, out.CommentsCount = q, a, c
		return err
	})
	g.Go(func() error {
		list, err := h.polls.List(gctx, polls.Filter{LectureCode: l.AccessCode})
		if err != nil {
			return err
		}
		out.PollsCount = len(list)
		for i := range list {
			out.VotesCount += list[i].TotalVotes()
		}
		return nil
	})
	g.Go(func() error {
		pages, err := h.unanswered.Pages(gctx, l.AccessCode)
		out.UnansweredPages = pages
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.UnansweredPages == nil {
		out.UnansweredPages = []int{}
	}
	if out.QuestionsCount > 0 {
		out.AnsweredPercent = float64(out.AcknowledgedCount) / float64(out.QuestionsCount) * 100
	}
	return out, nil
}

// GetByLecture handles GET /lectures/:code/summary. Only the lecture's owner may read it.
func (h *Handler) GetByLecture(c *gin.Context) {
	ctx := c.Request.Context()
	l, err := h.lectures.Lookup(ctx, c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to look up lecture")
		return
	}
	instructorID, ok := auth.InstructorID(c)
	if !ok || instructorID == uuid.Nil {
		response.Unauthorized(c, "missing instructor context")
		return
	}
	if l.InstructorID != instructorID {
		response.Forbidden(c, "not the owner of this lecture")
		return
	}
	out, err := h.Summarize(ctx, l)
	if err != nil {
		response.Error(c, err, "failed to load lecture summary")
		return
	}
	response.OK(c, out)
}
