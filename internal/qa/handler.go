package qa

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/response"
)

// PostRequest is the body for posting a question or comment.
type PostRequest struct {
	Text string `json:"text" binding:"required"`
}

// AllPagesResponse is the whole-lecture Q&A view.
type AllPagesResponse struct {
	Pages map[int]*models.PageThread `json:"pages"`
}

// UnansweredResponse lists pages with unacknowledged questions.
type UnansweredResponse struct {
	Pages []int `json:"pages"`
}

// RecomputeResponse reports a page's membership after recompute.
type RecomputeResponse struct {
	Page       int  `json:"page"`
	Unanswered bool `json:"unanswered"`
}

// Handler handles Q&A HTTP endpoints.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a Q&A handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func pageParam(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 0 {
		response.BadRequest(c, "invalid page")
		return 0, false
	}
	return page, true
}

// ListPage handles GET /lectures/:code/pages/:page.
func (h *Handler) ListPage(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	thread, err := h.ledger.ListByPage(c.Request.Context(), c.Param("code"), page)
	if err != nil {
		response.Error(c, err, "failed to load page")
		return
	}
	response.OK(c, thread)
}

// ListAll handles GET /lectures/:code/qa.
func (h *Handler) ListAll(c *gin.Context) {
	pages, err := h.ledger.ListAll(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to load lecture Q&A")
		return
	}
	response.OK(c, AllPagesResponse{Pages: pages})
}

// PostQuestion handles POST /lectures/:code/pages/:page/questions.
func (h *Handler) PostQuestion(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: text is required")
		return
	}
	q, err := h.ledger.PostQuestion(c.Request.Context(), c.Param("code"), page, req.Text)
	if err != nil {
		response.Error(c, err, "failed to post question")
		return
	}
	response.Created(c, q)
}

// PostComment handles POST /lectures/:code/pages/:page/comments.
func (h *Handler) PostComment(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: text is required")
		return
	}
	cm, err := h.ledger.PostComment(c.Request.Context(), c.Param("code"), page, req.Text)
	if err != nil {
		response.Error(c, err, "failed to post comment")
		return
	}
	response.Created(c, cm)
}

// Acknowledge handles POST /lectures/:code/pages/:page/questions/:id/acknowledge (instructor, owner).
func (h *Handler) Acknowledge(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid question id")
		return
	}
	instructorID, ok := auth.InstructorID(c)
	if !ok {
		response.Unauthorized(c, "missing instructor context")
		return
	}
	q, err := h.ledger.Acknowledge(c.Request.Context(), c.Param("code"), page, id, instructorID)
	if err != nil {
		response.Error(c, err, "failed to acknowledge question")
		return
	}
	response.OK(c, q)
}

// Unanswered handles GET /lectures/:code/unanswered.
func (h *Handler) Unanswered(c *gin.Context) {
	pages, err := h.ledger.UnansweredPages(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to load unanswered pages")
		return
	}
	response.OK(c, UnansweredResponse{Pages: pages})
}

// Recompute handles POST /lectures/:code/pages/:page/recompute.
func (h *Handler) Recompute(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	unanswered, err := h.ledger.RecomputePage(c.Request.Context(), c.Param("code"), page)
	if err != nil {
		response.Error(c, err, "failed to recompute page")
		return
	}
	response.OK(c, RecomputeResponse{Page: page, Unanswered: unanswered})
}
