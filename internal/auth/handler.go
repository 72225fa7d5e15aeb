package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/response"
	"github.com/lecturelink/backend/pkg/utils"
)

// ContextInstructorID is the gin context key holding the authenticated instructor's uuid.UUID.
// The JWT middleware sets it; it lives here so handlers need not import the middleware.
const ContextInstructorID = "instructor_id"

// Store is the instructor persistence used by the handler.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*models.Instructor, error)
	List(ctx context.Context) ([]models.InstructorPublic, error)
	Create(ctx context.Context, username, passwordHash string, role models.Role) (*models.Instructor, error)
	UpdateUsername(ctx context.Context, id uuid.UUID, username string) (*models.Instructor, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// LecturePurger removes an instructor's lectures before the account goes.
type LecturePurger interface {
	DeleteAllByInstructor(ctx context.Context, instructorID uuid.UUID) (int, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateRequest is the body for PATCH /instructors/:id.
type UpdateRequest struct {
	Username string `json:"username" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token      string                  `json:"token"`
	Instructor models.InstructorPublic `json:"instructor"`
}

// Handler handles auth and instructor account endpoints.
type Handler struct {
	repo     Store
	jwt      *JWTService
	lectures LecturePurger
	logger   *zap.Logger
}

// NewHandler creates an auth handler. lectures may be nil when account deletion should not purge lectures.
func NewHandler(repo Store, jwt *JWTService, lectures LecturePurger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, lectures: lectures, logger: logger}
}

// InstructorID returns the authenticated instructor from the gin context.
func InstructorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextInstructorID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		response.BadRequest(c, "username is required")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	u, err := h.repo.Create(c.Request.Context(), username, hash, models.RoleInstructor)
	if err != nil {
		response.Error(c, err, "failed to create instructor")
		return
	}

	token, err := h.jwt.Generate(u.ID, u.Username, string(u.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("instructor registered", zap.String("instructor_id", u.ID.String()))
	response.Created(c, TokenResponse{Token: token, Instructor: u.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	u, err := h.repo.GetByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Error("login lookup failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid username or password")
		return
	}
	if !utils.CheckPassword(req.Password, u.Password) {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	token, err := h.jwt.Generate(u.ID, u.Username, string(u.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Instructor: u.ToPublic()})
}

// List handles GET /instructors.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Error(c, err, "failed to list instructors")
		return
	}
	response.OK(c, list)
}

// ownerParam parses :id and requires it to be the caller.
func ownerParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid instructor id")
		return uuid.Nil, false
	}
	caller, ok := InstructorID(c)
	if !ok || caller != id {
		response.Forbidden(c, "can only modify your own account")
		return uuid.Nil, false
	}
	return id, true
}

// Update handles PATCH /instructors/:id (owner only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := ownerParam(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		response.BadRequest(c, "username is required")
		return
	}
	u, err := h.repo.UpdateUsername(c.Request.Context(), id, username)
	if err != nil {
		response.Error(c, err, "failed to update instructor")
		return
	}
	response.OK(c, u.ToPublic())
}

// Delete handles DELETE /instructors/:id (owner only). The account's lectures are purged first.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := ownerParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if h.lectures != nil {
		n, err := h.lectures.DeleteAllByInstructor(ctx, id)
		if err != nil {
			response.Error(c, err, "failed to delete lectures")
			return
		}
		h.logger.Info("instructor lectures deleted", zap.String("instructor_id", id.String()), zap.Int("count", n))
	}
	existed, err := h.repo.Delete(ctx, id)
	if err != nil {
		response.Error(c, err, "failed to delete instructor")
		return
	}
	response.Result(c, existed)
}
