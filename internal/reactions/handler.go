package reactions

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/response"
)

// HeaderVoterID carries the caller's voter identity.
const HeaderVoterID = "X-Voter-ID"

// VoterResolver picks the voter id for a request. bodyVoter is the optional voterId from the body.
type VoterResolver func(c *gin.Context, bodyVoter string) string

// DefaultVoterResolver uses the X-Voter-ID header, then the body or query voterId, then "anon".
func DefaultVoterResolver(c *gin.Context, bodyVoter string) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderVoterID)); v != "" {
		return v
	}
	if v := strings.TrimSpace(bodyVoter); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Query("voterId")); v != "" {
		return v
	}
	return models.AnonymousVoter
}

// ToggleRequest is the optional body for the toggle endpoint.
type ToggleRequest struct {
	VoterID string `json:"voterId"`
}

// Handler handles reaction endpoints.
type Handler struct {
	ledger  *Ledger
	resolve VoterResolver
}

// NewHandler creates a reactions handler. A nil resolver means DefaultVoterResolver.
func NewHandler(ledger *Ledger, resolve VoterResolver) *Handler {
	if resolve == nil {
		resolve = DefaultVoterResolver
	}
	return &Handler{ledger: ledger, resolve: resolve}
}

// Toggle handles POST /lectures/:code/reactions/:type/:id/toggle.
func (h *Handler) Toggle(c *gin.Context) {
	id, err := ParseItemID(c.Param("id"))
	if err != nil {
		response.Error(c, err, "invalid item id")
		return
	}
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	voter := h.resolve(c, req.VoterID)
	r, err := h.ledger.ToggleVote(c.Request.Context(), c.Param("code"), models.ItemType(c.Param("type")), id, voter)
	if err != nil {
		response.Error(c, err, "failed to toggle reaction")
		return
	}
	response.OK(c, r)
}

// Get handles GET /lectures/:code/reactions/:type/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := ParseItemID(c.Param("id"))
	if err != nil {
		response.Error(c, err, "invalid item id")
		return
	}
	voter := h.resolve(c, "")
	r, err := h.ledger.Get(c.Request.Context(), c.Param("code"), models.ItemType(c.Param("type")), id, voter)
	if err != nil {
		response.Error(c, err, "failed to get reactions")
		return
	}
	response.OK(c, r)
}
