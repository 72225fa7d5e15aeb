package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/syncloop"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/response"
)

var _ syncloop.Source = (*Client)(nil)

func newTestServer(t *testing.T) (*Client, *http.Header) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	seen := &http.Header{}
	r := gin.New()
	api := r.Group("")
	api.Use(func(c *gin.Context) {
		*seen = c.Request.Header.Clone()
	})
	api.POST("/auth/login", func(c *gin.Context) {
		response.OK(c, gin.H{"token": "jwt-123", "instructor": gin.H{"username": "prof"}})
	})
	api.GET("/lectures/:code/polls/current", func(c *gin.Context) {
		if c.Param("code") == "EMPTY1" {
			response.OK(c, nil)
			return
		}
		response.OK(c, models.Poll{Question: "Q", Options: []models.PollOption{{Text: "a", Votes: 2}}})
	})
	api.POST("/polls/:id/vote", func(c *gin.Context) {
		response.Gone(c, "poll has ended")
	})
	api.GET("/lectures/:code/qa", func(c *gin.Context) {
		response.OK(c, gin.H{"pages": gin.H{"2": gin.H{"questions": []gin.H{{"id": 1, "text": "why"}}, "comments": []gin.H{}}}})
	})
	api.GET("/lectures/:code/unanswered", func(c *gin.Context) {
		response.OK(c, gin.H{"pages": []int{2}})
	})
	api.POST("/lectures/:code/reactions/:type/:id/toggle", func(c *gin.Context) {
		response.OK(c, models.Reaction{Count: 1, Voted: true})
	})
	api.POST("/lectures", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			response.BadRequest(c, "missing file")
			return
		}
		response.Created(c, models.Lecture{OriginalName: file.Filename, Title: c.PostForm("title")})
	})
	api.DELETE("/lectures/:code", func(c *gin.Context) {
		response.Forbidden(c, "not the owner of this lecture")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cl, err := New(srv.URL+"/", WithVoterID("browser-1"))
	require.NoError(t, err)
	return cl, seen
}

func TestLoginAdoptsToken(t *testing.T) {
	cl, seen := newTestServer(t)
	ctx := context.Background()

	s, err := cl.Login(ctx, "prof", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-123", s.Token)
	assert.Equal(t, "jwt-123", cl.Token())

	_, err = cl.AllPages(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-123", seen.Get("Authorization"))
	assert.Equal(t, "browser-1", seen.Get(HeaderVoterID))
}

func TestDecodesEnvelope(t *testing.T) {
	cl, _ := newTestServer(t)
	ctx := context.Background()

	p, err := cl.CurrentPoll(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 2, p.TotalVotes())

	p, err = cl.CurrentPoll(ctx, "EMPTY1")
	require.NoError(t, err)
	assert.Nil(t, p)

	pages, err := cl.AllPages(ctx, "ABC123")
	require.NoError(t, err)
	require.Contains(t, pages, 2)
	assert.Equal(t, "why", pages[2].Questions[0].Text)

	un, err := cl.UnansweredPages(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, un)

	r, err := cl.ToggleReaction(ctx, "ABC123", models.ItemQuestion, 1)
	require.NoError(t, err)
	assert.Equal(t, models.Reaction{Count: 1, Voted: true}, r)
}

func TestErrorsUnwrapToKinds(t *testing.T) {
	cl, _ := newTestServer(t)
	ctx := context.Background()

	_, err := cl.Vote(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, apperr.ErrExpired)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "poll has ended", apiErr.Message)

	err = cl.DeleteLecture(ctx, "ABC123")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = cl.Page(ctx, "ABC123", 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "unrouted paths are 404")
}

func TestUploadLecture(t *testing.T) {
	cl, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "slides.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	l, err := cl.UploadLecture(context.Background(), path, "Week 1", 4)
	require.NoError(t, err)
	assert.Equal(t, "slides.pdf", l.OriginalName)
	assert.Equal(t, "Week 1", l.Title)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
