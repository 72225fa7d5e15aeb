package lectures

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/pkg/response"
)

// Handler handles lecture directory endpoints.
type Handler struct {
	dir    *Directory
	logger *zap.Logger
}

// NewHandler creates a lecture handler.
func NewHandler(dir *Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, logger: logger}
}

// Create handles POST /lectures (multipart: file, title, pageCount).
func (h *Handler) Create(c *gin.Context) {
	instructorID, ok := auth.InstructorID(c)
	if !ok {
		response.Unauthorized(c, "missing instructor context")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	pageCount := 0
	if v := c.PostForm("pageCount"); v != "" {
		pageCount, err = strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "pageCount must be an integer")
			return
		}
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	l, err := h.dir.Create(c.Request.Context(), CreateInput{
		InstructorID: instructorID,
		Title:        c.PostForm("title"),
		PageCount:    pageCount,
		FileName:     file.Filename,
		Size:         file.Size,
		Body:         rc,
	})
	if err != nil {
		response.Error(c, err, "failed to create lecture")
		return
	}
	response.Created(c, l)
}

// Mine handles GET /lectures (the caller's lectures).
func (h *Handler) Mine(c *gin.Context) {
	instructorID, ok := auth.InstructorID(c)
	if !ok {
		response.Unauthorized(c, "missing instructor context")
		return
	}
	list, err := h.dir.ListByInstructor(c.Request.Context(), instructorID)
	if err != nil {
		response.Error(c, err, "failed to list lectures")
		return
	}
	response.OK(c, list)
}

// Lookup handles GET /lectures/:code. Students see only the public view.
func (h *Handler) Lookup(c *gin.Context) {
	l, err := h.dir.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to look up lecture")
		return
	}
	response.OK(c, l.ToPublic())
}

// Document handles GET /lectures/:code/document: a 302 to a presigned URL, or the link as JSON
// when redirect=false.
func (h *Handler) Document(c *gin.Context) {
	link, err := h.dir.DocumentURL(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err, "failed to sign document url")
		return
	}
	if c.Query("redirect") == "false" {
		response.OK(c, link)
		return
	}
	c.Redirect(http.StatusFound, link.URL)
}

// Delete handles DELETE /lectures/:code (owner only).
func (h *Handler) Delete(c *gin.Context) {
	instructorID, ok := auth.InstructorID(c)
	if !ok {
		response.Unauthorized(c, "missing instructor context")
		return
	}
	if err := h.dir.Delete(c.Request.Context(), c.Param("code"), instructorID); err != nil {
		response.Error(c, err, "failed to delete lecture")
		return
	}
	response.Result(c, true)
}
