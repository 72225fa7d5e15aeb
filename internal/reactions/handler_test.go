package reactions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturelink/backend/internal/models"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l, _ := newTestLedger(t)
	h := NewHandler(l, nil)
	r := gin.New()
	r.POST("/lectures/:code/reactions/:type/:id/toggle", h.Toggle)
	r.GET("/lectures/:code/reactions/:type/:id", h.Get)
	return r
}

func call(t *testing.T, r http.Handler, method, path, voterHeader, body string) (int, models.Reaction) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if voterHeader != "" {
		req.Header.Set(HeaderVoterID, voterHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env struct {
		Data models.Reaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env.Data
}

func TestToggleEndpointResolvesVoter(t *testing.T) {
	r := newTestRouter(t)

	code, got := call(t, r, http.MethodPost, "/lectures/ABC123/reactions/question/1/toggle", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Reaction{Count: 1, Voted: true}, got, "anonymous voter")

	code, got = call(t, r, http.MethodPost, "/lectures/ABC123/reactions/question/1/toggle", "", `{"voterId":"bob"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, got.Count)

	code, got = call(t, r, http.MethodPost, "/lectures/ABC123/reactions/question/1/toggle", "bob", `{"voterId":"ignored"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Reaction{Count: 1, Voted: false}, got, "header wins over body")

	code, got = call(t, r, http.MethodGet, "/lectures/ABC123/reactions/question/1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Reaction{Count: 1, Voted: true}, got)

	code, got = call(t, r, http.MethodGet, "/lectures/ABC123/reactions/question/1?voterId=bob", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, got.Voted)
}

func TestToggleEndpointErrors(t *testing.T) {
	r := newTestRouter(t)

	code, _ := call(t, r, http.MethodPost, "/lectures/ABC123/reactions/slide/1/toggle", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/lectures/ABC123/reactions/question/x/toggle", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/lectures/ZZZ999/reactions/question/1/toggle", "", "")
	assert.Equal(t, http.StatusNotFound, code)
}
