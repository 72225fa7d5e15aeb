package lectures

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/queue"
	"github.com/lecturelink/backend/pkg/storage"
	"github.com/lecturelink/backend/pkg/utils"
)

// CodeLength is the length of generated access codes.
const CodeLength = 6

// Store persists lectures. Create returns ErrCodeTaken on an access code collision, including a
// collision with a retired lecture whose purge has not finished.
type Store interface {
	Create(ctx context.Context, l *models.Lecture) error
	GetByCode(ctx context.Context, code string) (*models.Lecture, error)
	ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]models.Lecture, error)
	Retire(ctx context.Context, id uuid.UUID) (bool, error)
}

// BlobStore holds lecture documents. *storage.S3 satisfies it.
type BlobStore interface {
	PutDocument(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignDocument(ctx context.Context, key string) (string, error)
	DeleteDocument(ctx context.Context, key string) error
}

// PurgeQueue receives cleanup jobs for deleted lectures.
type PurgeQueue interface {
	EnqueueLecturePurge(ctx context.Context, payload queue.LecturePurgePayload) error
}

// CreateInput is an uploaded lecture document plus its metadata.
type CreateInput struct {
	InstructorID uuid.UUID
	Title        string
	PageCount    int
	FileName     string
	Size         int64
	Body         io.Reader
}

// DocumentLink is a time-limited URL for a lecture's document.
type DocumentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Directory maps access codes to lectures.
type Directory struct {
	store    Store
	blobs    BlobStore
	cache    *Cache
	purge    PurgeQueue
	logger   *zap.Logger
	maxBytes int64
	attempts int
	genCode  func() (string, error)
	now      func() time.Time
	linkTTL  time.Duration
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithCodeGenerator replaces the random access code generator.
func WithCodeGenerator(gen func() (string, error)) DirectoryOption {
	return func(d *Directory) { d.genCode = gen }
}

// WithCodeAttempts bounds how many codes Create tries before giving up.
func WithCodeAttempts(n int) DirectoryOption {
	return func(d *Directory) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// WithMaxUploadBytes sets the document size limit. Zero disables the check.
func WithMaxUploadBytes(n int64) DirectoryOption {
	return func(d *Directory) { d.maxBytes = n }
}

// WithLinkTTL sets the expiry reported alongside presigned document URLs.
func WithLinkTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) { d.linkTTL = ttl }
}

// NewDirectory creates a session directory. cache and purge may be nil.
func NewDirectory(store Store, blobs BlobStore, cache *Cache, purge PurgeQueue, logger *zap.Logger, opts ...DirectoryOption) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{
		store:    store,
		blobs:    blobs,
		cache:    cache,
		purge:    purge,
		logger:   logger,
		attempts: 5,
		now:      time.Now,
		linkTTL:  15 * time.Minute,
		genCode: func() (string, error) {
			return utils.RandomCode(CodeLength, utils.CodeAlphabet)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeCode upper-cases and trims an access code as typed by a student.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create uploads the document and registers a lecture under a fresh access code.
func (d *Directory) Create(ctx context.Context, in CreateInput) (*models.Lecture, error) {
	if in.InstructorID == uuid.Nil {
		return nil, apperr.Validationf("instructor is required")
	}
	fileName := path.Base(strings.TrimSpace(in.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.Validationf("file is required")
	}
	contentType := storage.DocumentContentType(fileName)
	if contentType == "" {
		return nil, apperr.Validationf("invalid file type; allowed: pdf, ppt, pptx, doc, docx, txt")
	}
	if in.PageCount < 0 {
		return nil, apperr.Validationf("pageCount must not be negative")
	}
	if in.Size <= 0 {
		return nil, apperr.Validationf("file is empty")
	}
	if d.maxBytes > 0 && in.Size > d.maxBytes {
		return nil, apperr.Validationf("file too large (max %d MB)", d.maxBytes/(1024*1024))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, path.Ext(fileName))
	}

	l := &models.Lecture{
		ID:           uuid.New(),
		InstructorID: in.InstructorID,
		Title:        title,
		OriginalName: fileName,
		ContentType:  contentType,
		SizeBytes:    in.Size,
		PageCount:    in.PageCount,
	}
	l.DocumentKey = storage.DocumentKey(l.ID.String(), fileName)
	if err := d.blobs.PutDocument(ctx, l.DocumentKey, contentType, in.Body, in.Size); err != nil {
		return nil, err
	}

	if err := d.insertWithFreshCode(ctx, l); err != nil {
		if delErr := d.blobs.DeleteDocument(ctx, l.DocumentKey); delErr != nil {
			d.logger.Warn("orphaned lecture document", zap.String("key", l.DocumentKey), zap.Error(delErr))
		}
		return nil, err
	}
	d.cacheSet(ctx, l)
	d.logger.Info("lecture created",
		zap.String("lecture_id", l.ID.String()),
		zap.String("access_code", l.AccessCode),
		zap.String("instructor_id", l.InstructorID.String()))
	return l, nil
}

func (d *Directory) insertWithFreshCode(ctx context.Context, l *models.Lecture) error {
	for i := 0; i < d.attempts; i++ {
		code, err := d.genCode()
		if err != nil {
			return err
		}
		l.AccessCode = NormalizeCode(code)
		err = d.store.Create(ctx, l)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return err
		}
		d.logger.Debug("access code collision", zap.String("code", l.AccessCode))
	}
	return apperr.Conflictf("could not allocate a unique access code")
}

// Lookup resolves an access code, case-insensitively.
func (d *Directory) Lookup(ctx context.Context, code string) (*models.Lecture, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.Validationf("access code is required")
	}
	if d.cache != nil {
		l, err := d.cache.Get(ctx, code)
		if err != nil {
			d.logger.Warn("lecture cache read failed", zap.String("code", code), zap.Error(err))
		} else if l != nil {
			return l, nil
		}
	}
	l, err := d.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	d.cacheSet(ctx, l)
	return l, nil
}

// ListByInstructor returns an instructor's lectures, newest first.
func (d *Directory) ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]models.Lecture, error) {
	return d.store.ListByInstructor(ctx, instructorID)
}

// Delete retires an owned lecture and queues cleanup of everything keyed by its code. The code
// stays reserved until the purge worker releases it.
func (d *Directory) Delete(ctx context.Context, code string, instructorID uuid.UUID) error {
	l, err := d.Lookup(ctx, code)
	if err != nil {
		return err
	}
	if l.InstructorID != instructorID {
		return apperr.Forbiddenf("not the owner of this lecture")
	}
	return d.remove(ctx, l)
}

func (d *Directory) remove(ctx context.Context, l *models.Lecture) error {
	existed, err := d.store.Retire(ctx, l.ID)
	if err != nil {
		return err
	}
	if d.cache != nil {
		if err := d.cache.Invalidate(ctx, l.AccessCode); err != nil {
			d.logger.Warn("lecture cache invalidate failed", zap.String("code", l.AccessCode), zap.Error(err))
		}
	}
	if !existed {
		return apperr.NotFoundf("lecture not found")
	}
	if d.purge != nil {
		payload := queue.LecturePurgePayload{LectureID: l.ID, AccessCode: l.AccessCode, DocumentKey: l.DocumentKey}
		if err := d.purge.EnqueueLecturePurge(ctx, payload); err != nil {
			d.logger.Error("enqueue lecture purge failed", zap.String("code", l.AccessCode), zap.Error(err))
		}
	}
	d.logger.Info("lecture deleted", zap.String("lecture_id", l.ID.String()), zap.String("access_code", l.AccessCode))
	return nil
}

// DeleteAllByInstructor removes every lecture of an instructor and returns how many were removed.
func (d *Directory) DeleteAllByInstructor(ctx context.Context, instructorID uuid.UUID) (int, error) {
	list, err := d.store.ListByInstructor(ctx, instructorID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range list {
		err := d.remove(ctx, &list[i])
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DocumentURL returns a presigned download link for the lecture's document.
func (d *Directory) DocumentURL(ctx context.Context, code string) (*DocumentLink, error) {
	l, err := d.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if l.DocumentKey == "" {
		return nil, apperr.NotFoundf("lecture has no document")
	}
	url, err := d.blobs.PresignDocument(ctx, l.DocumentKey)
	if err != nil {
		return nil, err
	}
	return &DocumentLink{URL: url, ExpiresAt: d.now().Add(d.linkTTL)}, nil
}

func (d *Directory) cacheSet(ctx context.Context, l *models.Lecture) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, l); err != nil {
		d.logger.Warn("lecture cache write failed", zap.String("code", l.AccessCode), zap.Error(err))
	}
}
