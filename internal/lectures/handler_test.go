package lectures

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, caller uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(newFixture(t).dir, nil)
	r := gin.New()
	setCaller := func(c *gin.Context) { c.Set(auth.ContextInstructorID, caller) }
	r.POST("/lectures", setCaller, h.Create)
	r.GET("/lectures", setCaller, h.Mine)
	r.GET("/lectures/:code", h.Lookup)
	r.GET("/lectures/:code/document", h.Document)
	r.DELETE("/lectures/:code", setCaller, h.Delete)
	return r
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, r http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHandlerLectureLifecycle(t *testing.T) {
	r := newTestRouter(t, owner)

	body, ct := multipartUpload(t, "intro.pdf", "%PDF", map[string]string{"title": "Intro", "pageCount": "8"})
	req := httptest.NewRequest(http.MethodPost, "/lectures", body)
	req.Header.Set("Content-Type", ct)
	code, env := do(t, r, req)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var l models.Lecture
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Equal(t, "Intro", l.Title)
	assert.Equal(t, 8, l.PageCount)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/lectures/"+l.AccessCode, nil))
	require.Equal(t, http.StatusOK, code)
	var pub map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &pub))
	assert.Equal(t, "Intro", pub["title"])
	assert.NotContains(t, pub, "instructorId")
	assert.NotContains(t, pub, "documentKey")

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/lectures/"+l.AccessCode+"/document?redirect=false", nil))
	require.Equal(t, http.StatusOK, code)
	var link DocumentLink
	require.NoError(t, json.Unmarshal(env.Data, &link))
	assert.NotEmpty(t, link.URL)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lectures/"+l.AccessCode+"/document", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, link.URL, w.Header().Get("Location"))

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/lectures", nil))
	require.Equal(t, http.StatusOK, code)
	var mine []models.Lecture
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	code, env = do(t, r, httptest.NewRequest(http.MethodDelete, "/lectures/"+l.AccessCode, nil))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/lectures/"+l.AccessCode, nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlerCreateRejects(t *testing.T) {
	r := newTestRouter(t, owner)

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
	}{
		{"missing file", "", map[string]string{"title": "x"}},
		{"bad page count", "a.pdf", map[string]string{"pageCount": "many"}},
		{"bad type", "a.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartUpload(t, tt.filename, "data", tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/lectures", body)
			req.Header.Set("Content-Type", ct)
			code, env := do(t, r, req)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
		})
	}
}
