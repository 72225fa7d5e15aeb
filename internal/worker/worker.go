package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/pkg/metrics"
	"github.com/lecturelink/backend/pkg/queue"
)

// JobQueue is the part of *queue.Queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// DocumentRemover deletes lecture documents. *storage.S3 satisfies it.
type DocumentRemover interface {
	DeleteDocument(ctx context.Context, key string) error
}

// PollPurger deletes a lecture's polls. *polls.Repository satisfies it.
type PollPurger interface {
	DeleteByLecture(ctx context.Context, code string) (int64, error)
}

// QAPurger deletes a lecture's questions and comments. *qa.Repository satisfies it.
type QAPurger interface {
	DeleteByLecture(ctx context.Context, code string) error
}

// ReactionPurger deletes a lecture's reaction keys. *reactions.Ledger satisfies it.
type ReactionPurger interface {
	Purge(ctx context.Context, code string) (int64, error)
}

// TrackerPurger deletes a lecture's unanswered set. *unanswered.Tracker satisfies it.
type TrackerPurger interface {
	Purge(ctx context.Context, code string) error
}

// LectureReleaser drops a retired lecture row so its access code can be reissued.
// *lectures.Repository satisfies it.
type LectureReleaser interface {
	Release(ctx context.Context, id uuid.UUID) (bool, error)
}

// PurgeProcessor cleans up everything keyed by a deleted lecture's access code, then frees the code.
type PurgeProcessor struct {
	queue     JobQueue
	documents DocumentRemover
	polls     PollPurger
	qa        QAPurger
	reactions ReactionPurger
	tracker   TrackerPurger
	lectures  LectureReleaser
	metrics   *metrics.Metrics
	logger    *zap.Logger
	backoff   time.Duration
}

// NewPurgeProcessor creates a lecture purge processor. documents may be nil when no blob store is configured.
func NewPurgeProcessor(q JobQueue, documents DocumentRemover, polls PollPurger, qa QAPurger,
	reactions ReactionPurger, tracker TrackerPurger, lectures LectureReleaser, m *metrics.Metrics, logger *zap.Logger) *PurgeProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurgeProcessor{
		queue:     q,
		documents: documents,
		polls:     polls,
		qa:        qa,
		reactions: reactions,
		tracker:   tracker,
		lectures:  lectures,
		metrics:   m,
		logger:    logger,
		backoff:   queue.RetryBackoff,
	}
}

// Process executes one lecture purge job. Every step is idempotent so a retried job is safe.
// The lecture row goes last: until then no new lecture can draw the same access code, so nothing
// removed here can belong to a newer lecture.
func (p *PurgeProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLecturePurge {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LecturePurgePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.AccessCode == "" {
		return fmt.Errorf("purge job %s has no access code", job.ID)
	}
	code := payload.AccessCode

	if payload.DocumentKey != "" && p.documents != nil {
		if err := p.documents.DeleteDocument(ctx, payload.DocumentKey); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	}
	removedPolls, err := p.polls.DeleteByLecture(ctx, code)
	if err != nil {
		return fmt.Errorf("delete polls: %w", err)
	}
	if err := p.qa.DeleteByLecture(ctx, code); err != nil {
		return fmt.Errorf("delete q&a: %w", err)
	}
	removedKeys, err := p.reactions.Purge(ctx, code)
	if err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}
	if err := p.tracker.Purge(ctx, code); err != nil {
		return fmt.Errorf("delete unanswered set: %w", err)
	}
	released := false
	if payload.LectureID != uuid.Nil && p.lectures != nil {
		if released, err = p.lectures.Release(ctx, payload.LectureID); err != nil {
			return fmt.Errorf("release access code: %w", err)
		}
	}

	p.logger.Info("lecture purged",
		zap.String("lecture_id", payload.LectureID.String()),
		zap.String("access_code", code),
		zap.Int64("polls", removedPolls),
		zap.Int64("reaction_keys", removedKeys),
		zap.Bool("code_released", released))
	return nil
}

// ProcessNext dequeues and handles a single job. It reports whether a job was taken.
func (p *PurgeProcessor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	if err := p.Process(ctx, job); err != nil {
		p.metrics.PurgeJob(false)
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		return true, err
	}
	p.metrics.PurgeJob(true)
	return true, nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PurgeProcessor) Run(ctx context.Context) {
	p.logger.Info("purge worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("purge worker stopping")
			return
		default:
		}

		if _, err := p.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("purge worker backing off", zap.Error(err), zap.Duration("backoff", p.backoff))
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
			}
		}
	}
}
