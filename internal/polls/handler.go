package polls

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturelink/backend/pkg/response"
)

// VoteRequest is the body for POST /polls/:id/vote.
type VoteRequest struct {
	OptionIndex *int `json:"optionIndex" binding:"required"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler creates a polls handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func pollID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /polls.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.engine.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err, "failed to create poll")
		return
	}
	response.Created(c, p)
}

// List handles GET /polls?instructorId=&lectureCode=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.engine.List(c.Request.Context(), Filter{
		InstructorID: c.Query("instructorId"),
		LectureCode:  c.Query("lectureCode"),
	})
	if err != nil {
		response.Error(c, err, "failed to list polls")
		return
	}
	response.OK(c, list)
}

// Get handles GET /polls/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := pollID(c)
	if !ok {
		return
	}
	p, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to get poll")
		return
	}
	response.OK(c, p)
}

// Update handles PUT /polls/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := pollID(c)
	if !ok {
		return
	}
	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.engine.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err, "failed to update poll")
		return
	}
	response.OK(c, p)
}

// Delete handles DELETE /polls/:id. success reports whether the poll existed.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := pollID(c)
	if !ok {
		return
	}
	existed, err := h.engine.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to delete poll")
		return
	}
	response.Result(c, existed)
}

// Activate handles POST /polls/:id/activate.
func (h *Handler) Activate(c *gin.Context) {
	id, ok := pollID(c)
	if !ok {
		return
	}
	p, err := h.engine.Activate(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to activate poll")
		return
	}
	response.OK(c, p)
}

// Vote handles POST /polls/:id/vote.
func (h *Handler) Vote(c *gin.Context) {
	id, ok := pollID(c)
	if !ok {
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: optionIndex is required")
		return
	}
	p, err := h.engine.Vote(c.Request.Context(), id, *req.OptionIndex)
	if err != nil {
		response.Error(c, err, "failed to record vote")
		return
	}
	response.OK(c, p)
}

// Current handles GET /lectures/:code/polls/current. Data is null when no poll was activated yet.
func (h *Handler) Current(c *gin.Context) {
	p, err := h.engine.Current(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to get current poll")
		return
	}
	if p == nil {
		response.OK(c, nil)
		return
	}
	response.OK(c, p)
}
