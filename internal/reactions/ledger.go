// Package reactions keeps per-item thumbs-up votes: one vote per voter per item, count equals
// the number of voters.
package reactions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/pkg/apperr"
	"github.com/lecturelink/backend/pkg/metrics"
	redisutil "github.com/lecturelink/backend/pkg/redis"
)

// toggleScript flips voter membership and returns {count, voted}.
var toggleScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
	redis.call('SREM', KEYS[1], ARGV[1])
	return {redis.call('SCARD', KEYS[1]), 0}
end
redis.call('SADD', KEYS[1], ARGV[1])
return {redis.call('SCARD', KEYS[1]), 1}
`)

// LectureLookup resolves an access code to its lecture.
type LectureLookup interface {
	Lookup(ctx context.Context, code string) (*models.Lecture, error)
}

// Key returns the voter set key of one item.
func Key(code string, itemType models.ItemType, itemID int64) string {
	return fmt.Sprintf("lecture:%s:reactions:%s:%d", code, itemType, itemID)
}

// Ledger stores reaction voter sets in Redis.
type Ledger struct {
	rdb      redis.UniversalClient
	lectures LectureLookup
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewLedger creates a reaction ledger. lectures may be nil to skip the lecture existence check.
func NewLedger(rdb redis.UniversalClient, lectures LectureLookup, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{rdb: rdb, lectures: lectures, metrics: m, logger: logger}
}

func (l *Ledger) check(ctx context.Context, code string, itemType models.ItemType, itemID int64, voterID string) (string, error) {
	if !itemType.Valid() {
		return "", apperr.Validationf("item type must be question or comment")
	}
	if itemID <= 0 {
		return "", apperr.Validationf("invalid item id")
	}
	if voterID == "" {
		return "", apperr.Validationf("voter id is required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", apperr.Validationf("lecture code is required")
	}
	if l.lectures != nil {
		lec, err := l.lectures.Lookup(ctx, code)
		if err != nil {
			return "", err
		}
		code = lec.AccessCode
	}
	return code, nil
}

// ToggleVote adds the voter's vote, or removes it when already present. Toggling twice restores
// the original count.
func (l *Ledger) ToggleVote(ctx context.Context, code string, itemType models.ItemType, itemID int64, voterID string) (models.Reaction, error) {
	code, err := l.check(ctx, code, itemType, itemID, voterID)
	if err != nil {
		return models.Reaction{}, err
	}
	res, err := toggleScript.Run(ctx, l.rdb, []string{Key(code, itemType, itemID)}, voterID).Int64Slice()
	if err != nil {
		return models.Reaction{}, fmt.Errorf("toggle: %w", err)
	}
	if len(res) != 2 {
		return models.Reaction{}, fmt.Errorf("toggle: unexpected reply %v", res)
	}
	l.metrics.ReactionToggled(string(itemType))
	return models.Reaction{Count: int(res[0]), Voted: res[1] == 1}, nil
}

// GetVotes returns the number of voters of an item.
func (l *Ledger) GetVotes(ctx context.Context, code string, itemType models.ItemType, itemID int64) (int, error) {
	code, err := l.check(ctx, code, itemType, itemID, models.AnonymousVoter)
	if err != nil {
		return 0, err
	}
	n, err := l.rdb.SCard(ctx, Key(code, itemType, itemID)).Result()
	if err != nil {
		return 0, fmt.Errorf("scard: %w", err)
	}
	return int(n), nil
}

// HasVoted reports whether voterID holds a vote on the item.
func (l *Ledger) HasVoted(ctx context.Context, code string, itemType models.ItemType, itemID int64, voterID string) (bool, error) {
	code, err := l.check(ctx, code, itemType, itemID, voterID)
	if err != nil {
		return false, err
	}
	ok, err := l.rdb.SIsMember(ctx, Key(code, itemType, itemID), voterID).Result()
	if err != nil {
		return false, fmt.Errorf("sismember: %w", err)
	}
	return ok, nil
}

// Get returns count and the voter's membership in one round trip.
func (l *Ledger) Get(ctx context.Context, code string, itemType models.ItemType, itemID int64, voterID string) (models.Reaction, error) {
	code, err := l.check(ctx, code, itemType, itemID, voterID)
	if err != nil {
		return models.Reaction{}, err
	}
	key := Key(code, itemType, itemID)
	pipe := l.rdb.Pipeline()
	card := pipe.SCard(ctx, key)
	member := pipe.SIsMember(ctx, key, voterID)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Reaction{}, fmt.Errorf("reaction state: %w", err)
	}
	return models.Reaction{Count: int(card.Val()), Voted: member.Val()}, nil
}

// Purge removes every reaction set of a lecture.
func (l *Ledger) Purge(ctx context.Context, code string) (int64, error) {
	n, err := redisutil.DeletePattern(ctx, l.rdb, "lecture:"+code+":reactions:*")
	if err != nil {
		return n, err
	}
	l.logger.Debug("reactions purged", zap.String("lecture_code", code), zap.Int64("keys", n))
	return n, nil
}

// ParseItemID parses an item id path segment.
func ParseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid item id")
	}
	return id, nil
}
