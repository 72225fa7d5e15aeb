// Package unanswered tracks which lecture pages still carry unacknowledged questions.
// The set is always recomputed from the questions of a page, never patched incrementally.
//
// Every recompute first takes a per-page version (Begin), then reads the page, then applies its
// decision only if no later recompute of the same page has begun (Apply). A writer that read an
// older page state therefore can never overwrite the decision of one that read a newer state.
package unanswered

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
)

// DefaultRebuildInterval is how often a lecture's set is rebuilt from the ledger on read.
const DefaultRebuildInterval = 30 * time.Second

const rebuildAttempts = 3

// Key returns the Redis set key holding a lecture's unanswered page indexes.
func Key(code string) string {
	return "lecture:" + code + ":unanswered"
}

// VersionsKey returns the hash of per-page recompute versions.
func VersionsKey(code string) string {
	return "lecture:" + code + ":unanswered:versions"
}

func rebuiltKey(code string) string {
	return "lecture:" + code + ":unanswered:rebuilt"
}

// applyScript writes the membership only when ARGV[2] is still the page's latest version.
// It returns {applied, member}.
var applyScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur == ARGV[2] then
  if ARGV[3] == '1' then
    redis.call('SADD', KEYS[1], ARGV[1])
  else
    redis.call('SREM', KEYS[1], ARGV[1])
  end
  return {1, tonumber(ARGV[3])}
end
return {0, redis.call('SISMEMBER', KEYS[1], ARGV[1])}
`)

// Tracker maintains lecture:{code}:unanswered.
type Tracker struct {
	rdb             redis.UniversalClient
	logger          *zap.Logger
	rebuildInterval time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRebuildInterval sets how often RebuildDue reports a lecture as due. Zero or less keeps the default.
func WithRebuildInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.rebuildInterval = d
		}
	}
}

// NewTracker creates a tracker.
func NewTracker(rdb redis.UniversalClient, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{rdb: rdb, logger: logger, rebuildInterval: DefaultRebuildInterval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin claims the next recompute version of a page. Call it after the question write and
// before reading the page.
func (t *Tracker) Begin(ctx context.Context, code string, page int) (int64, error) {
	v, err := t.rdb.HIncrBy(ctx, VersionsKey(code), strconv.Itoa(page), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("begin recompute page %d: %w", page, err)
	}
	return v, nil
}

// Apply sets the page's membership from questions read under version. When a later Begin has
// happened the write is skipped, applied is false, and unanswered is the current membership.
func (t *Tracker) Apply(ctx context.Context, code string, page int, version int64, questions []models.Question) (applied, unanswered bool, err error) {
	want := "0"
	if models.HasUnanswered(questions) {
		want = "1"
	}
	res, err := applyScript.Run(ctx, t.rdb, []string{Key(code), VersionsKey(code)},
		strconv.Itoa(page), strconv.FormatInt(version, 10), want).Int64Slice()
	if err != nil {
		return false, false, fmt.Errorf("apply page %d: %w", page, err)
	}
	if len(res) != 2 {
		return false, false, fmt.Errorf("apply page %d: unexpected reply %v", page, res)
	}
	applied, unanswered = res[0] == 1, res[1] == 1
	t.logger.Debug("page recomputed",
		zap.String("lecture_code", code),
		zap.Int("page", page),
		zap.Int64("version", version),
		zap.Bool("applied", applied),
		zap.Bool("unanswered", unanswered))
	return applied, unanswered, nil
}

// IsUnanswered reports whether page is in the set.
func (t *Tracker) IsUnanswered(ctx context.Context, code string, page int) (bool, error) {
	ok, err := t.rdb.SIsMember(ctx, Key(code), strconv.Itoa(page)).Result()
	if err != nil {
		return false, fmt.Errorf("sismember: %w", err)
	}
	return ok, nil
}

// Pages returns the unanswered page indexes in ascending order.
func (t *Tracker) Pages(ctx context.Context, code string) ([]int, error) {
	members, err := t.rdb.SMembers(ctx, Key(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	pages := make([]int, 0, len(members))
	for _, m := range members {
		n, err := strconv.Atoi(m)
		if err != nil {
			t.logger.Warn("ignoring malformed page member", zap.String("lecture_code", code), zap.String("member", m))
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}

// RebuildDue reports whether the lecture's set should be rebuilt now. It returns true at most
// once per rebuild interval across all processes sharing the Redis instance.
func (t *Tracker) RebuildDue(ctx context.Context, code string) (bool, error) {
	ok, err := t.rdb.SetNX(ctx, rebuiltKey(code), "1", t.rebuildInterval).Result()
	if err != nil {
		return false, fmt.Errorf("claim rebuild: %w", err)
	}
	return ok, nil
}

// Rebuild replaces the whole set with what load returns. The replacement is dropped and load
// runs again when any page recompute begins in between, so a concurrent write is never lost.
func (t *Tracker) Rebuild(ctx context.Context, code string, load func(ctx context.Context) (map[int][]models.Question, error)) error {
	for attempt := 1; attempt <= rebuildAttempts; attempt++ {
		err := t.rdb.Watch(ctx, func(tx *redis.Tx) error {
			byPage, err := load(ctx)
			if err != nil {
				return err
			}
			members := make([]interface{}, 0, len(byPage))
			for page, qs := range byPage {
				if models.HasUnanswered(qs) {
					members = append(members, strconv.Itoa(page))
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, Key(code))
				if len(members) > 0 {
					pipe.SAdd(ctx, Key(code), members...)
				}
				return nil
			})
			return err
		}, VersionsKey(code))
		if err == nil {
			t.logger.Debug("unanswered set rebuilt", zap.String("lecture_code", code), zap.Int("attempt", attempt))
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("rebuild: %w", err)
		}
	}
	return fmt.Errorf("rebuild: page writes kept racing after %d attempts", rebuildAttempts)
}

// Purge drops the lecture's set and its bookkeeping keys.
func (t *Tracker) Purge(ctx context.Context, code string) error {
	return t.rdb.Del(ctx, Key(code), VersionsKey(code), rebuiltKey(code)).Err()
}
