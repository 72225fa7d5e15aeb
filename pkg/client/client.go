// Package client talks to the LectureLink HTTP API and unwraps its {success, data, error} envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
)

// HeaderVoterID carries the reaction voter identity.
const HeaderVoterID = "X-Voter-ID"

// APIError is a non-2xx answer. It unwraps to the apperr kind matching the status code.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Operation, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusGone:
		return apperr.ErrExpired
	case http.StatusForbidden:
		return apperr.ErrForbidden
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client is a LectureLink API client. Register and Login replace its token.
type Client struct {
	baseURL    string
	token      string
	voterID    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures the Client during construction.
type Option func(*Client)

// WithToken sends an instructor JWT on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithVoterID sets the identity used for reactions.
func WithVoterID(id string) Option {
	return func(c *Client) { c.voterID = id }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger configures request logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("client: baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid baseURL: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the JWT the client sends, if any.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path, operation string, body io.Reader, contentType string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.voterID != "" {
		req.Header.Set(HeaderVoterID, c.voterID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("api request", zap.String("operation", operation), zap.String("method", method), zap.String("path", path))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", operation, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success && env.Error != "" {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
	}
	if dst == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%s: decode data: %w", operation, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, operation string, in, dst interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, operation, body, contentType, dst)
}

func lecturePath(code string, rest ...string) string {
	p := "/lectures/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(code)))
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Session is the answer to register and login.
type Session struct {
	Token      string                  `json:"token"`
	Instructor models.InstructorPublic `json:"instructor"`
}

// Register creates an instructor account and adopts its token.
func (c *Client) Register(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", "register",
		map[string]string{"username": username, "password": password}, &s)
	if err != nil {
		return nil, err
	}
	c.token = s.Token
	return &s, nil
}

// Login authenticates an instructor and adopts the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "login",
		map[string]string{"username": username, "password": password}, &s)
	if err != nil {
		return nil, err
	}
	c.token = s.Token
	return &s, nil
}

// PollInput is the body of poll create.
type PollInput struct {
	InstructorID    string   `json:"instructorId"`
	LectureCode     string   `json:"lectureCode,omitempty"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	DurationSeconds int      `json:"durationSeconds"`
}

// CreatePoll creates a draft poll.
func (c *Client) CreatePoll(ctx context.Context, in PollInput) (*models.Poll, error) {
	var p models.Poll
	if err := c.doJSON(ctx, http.MethodPost, "/polls", "create poll", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPolls lists polls, newest first. Empty filters match everything.
func (c *Client) ListPolls(ctx context.Context, instructorID, lectureCode string) ([]models.Poll, error) {
	q := url.Values{}
	if instructorID != "" {
		q.Set("instructorId", instructorID)
	}
	if lectureCode != "" {
		q.Set("lectureCode", lectureCode)
	}
	path := "/polls"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []models.Poll
	if err := c.doJSON(ctx, http.MethodGet, path, "list polls", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ActivatePoll starts a draft poll's countdown.
func (c *Client) ActivatePoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	var p models.Poll
	if err := c.doJSON(ctx, http.MethodPost, "/polls/"+id.String()+"/activate", "activate poll", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Vote casts a vote for optionIndex.
func (c *Client) Vote(ctx context.Context, id uuid.UUID, optionIndex int) (*models.Poll, error) {
	var p models.Poll
	err := c.doJSON(ctx, http.MethodPost, "/polls/"+id.String()+"/vote", "vote",
		map[string]int{"optionIndex": optionIndex}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CurrentPoll returns the lecture's most recently activated poll, or nil.
func (c *Client) CurrentPoll(ctx context.Context, code string) (*models.Poll, error) {
	var p *models.Poll
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code, "polls", "current"), "current poll", nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Page returns one page's questions and comments.
func (c *Client) Page(ctx context.Context, code string, page int) (*models.PageThread, error) {
	var t models.PageThread
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code, "pages", strconv.Itoa(page)), "page", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AllPages returns every page's thread keyed by page index.
func (c *Client) AllPages(ctx context.Context, code string) (map[int]*models.PageThread, error) {
	var out struct {
		Pages map[int]*models.PageThread `json:"pages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code, "qa"), "all pages", nil, &out); err != nil {
		return nil, err
	}
	if out.Pages == nil {
		out.Pages = map[int]*models.PageThread{}
	}
	return out.Pages, nil
}

// UnansweredPages returns the pages holding unacknowledged questions, ascending.
func (c *Client) UnansweredPages(ctx context.Context, code string) ([]int, error) {
	var out struct {
		Pages []int `json:"pages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code, "unanswered"), "unanswered pages", nil, &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Recompute re-derives one page's unanswered marker.
func (c *Client) Recompute(ctx context.Context, code string, page int) (bool, error) {
	var out struct {
		Unanswered bool `json:"unanswered"`
	}
	err := c.doJSON(ctx, http.MethodPost, lecturePath(code, "pages", strconv.Itoa(page), "recompute"), "recompute", nil, &out)
	return out.Unanswered, err
}

// PostQuestion asks a question on a page.
func (c *Client) PostQuestion(ctx context.Context, code string, page int, text string) (*models.Question, error) {
	var q models.Question
	err := c.doJSON(ctx, http.MethodPost, lecturePath(code, "pages", strconv.Itoa(page), "questions"), "post question",
		map[string]string{"text": text}, &q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// PostComment leaves a comment on a page.
func (c *Client) PostComment(ctx context.Context, code string, page int, text string) (*models.Comment, error) {
	var cm models.Comment
	err := c.doJSON(ctx, http.MethodPost, lecturePath(code, "pages", strconv.Itoa(page), "comments"), "post comment",
		map[string]string{"text": text}, &cm)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// Acknowledge marks a question answered. Requires the lecture owner's token.
func (c *Client) Acknowledge(ctx context.Context, code string, page int, id int64) (*models.Question, error) {
	var q models.Question
	path := lecturePath(code, "pages", strconv.Itoa(page), "questions", strconv.FormatInt(id, 10), "acknowledge")
	if err := c.doJSON(ctx, http.MethodPost, path, "acknowledge", nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// ToggleReaction flips this client's vote on a question or comment.
func (c *Client) ToggleReaction(ctx context.Context, code string, itemType models.ItemType, id int64) (models.Reaction, error) {
	var r models.Reaction
	path := lecturePath(code, "reactions", string(itemType), strconv.FormatInt(id, 10), "toggle")
	err := c.doJSON(ctx, http.MethodPost, path, "toggle reaction", nil, &r)
	return r, err
}

// Lecture returns the public view of a lecture.
func (c *Client) Lecture(ctx context.Context, code string) (*models.LecturePublic, error) {
	var l models.LecturePublic
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code), "lecture", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// UploadLecture uploads a document and registers a lecture. Requires a token.
func (c *Client) UploadLecture(ctx context.Context, file, title string, pageCount int) (*models.Lecture, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("upload lecture: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if title != "" {
		_ = w.WriteField("title", title)
	}
	_ = w.WriteField("pageCount", strconv.Itoa(pageCount))
	part, err := w.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return nil, fmt.Errorf("upload lecture: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("upload lecture: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload lecture: %w", err)
	}

	var l models.Lecture
	if err := c.do(ctx, http.MethodPost, "/lectures", "upload lecture", &buf, w.FormDataContentType(), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// MyLectures lists the token owner's lectures.
func (c *Client) MyLectures(ctx context.Context) ([]models.Lecture, error) {
	var list []models.Lecture
	if err := c.doJSON(ctx, http.MethodGet, "/lectures", "my lectures", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteLecture removes an owned lecture.
func (c *Client) DeleteLecture(ctx context.Context, code string) error {
	return c.doJSON(ctx, http.MethodDelete, lecturePath(code), "delete lecture", nil, nil)
}

// Summary is a lecture's activity counters.
type Summary struct {
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

// Summary returns an owned lecture's activity counters.
func (c *Client) Summary(ctx context.Context, code string) (*Summary, error) {
	var s Summary
	if err := c.doJSON(ctx, http.MethodGet, lecturePath(code, "summary"), "summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
