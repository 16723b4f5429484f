package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/core/errx"
	logx "github.com/shoppick/server/pkg/logger"
)

const (
	metaKeyPrefix  = "sess:meta:"
	turnsKeyPrefix = "sess:turns:"
)

// Redis is a Store backed by a Redis instance. Session metadata lives in a
// hash and turns in an append-only list; both keys carry the idle TTL and
// are refreshed on every append, so eviction is handled by Redis itself.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store. ttl <= 0 means a 30 minute idle TTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func metaKey(id string) string  { return metaKeyPrefix + id }
func turnsKey(id string) string { return turnsKeyPrefix + id }

func (r *Redis) GetOrCreate(ctx context.Context, id string) (*model.Session, error) {
	if id != "" {
		sess, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return r.create(ctx)
}

func (r *Redis) load(ctx context.Context, id string) (*model.Session, error) {
	meta, err := r.client.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	if len(meta) == 0 {
		return nil, nil // unknown or expired
	}

	rows, err := r.client.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		if wrapped := errx.WrapRedis(err); wrapped != nil {
			return nil, wrapped
		}
		rows = nil
	}

	sess := &model.Session{ID: id, Turns: make([]model.Turn, 0, len(rows))}
	for _, row := range rows {
		var t model.Turn
		if err := json.Unmarshal([]byte(row), &t); err != nil {
			logx.Warn().Str("session_id", id).Err(err).Msg("Skipping undecodable session turn")
			continue
		}
		sess.Turns = append(sess.Turns, t)
	}
	sess.ClarifyCount, _ = strconv.Atoi(meta["clarify_count"])
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	sess.LastActiveAt, _ = time.Parse(time.RFC3339Nano, meta["last_active_at"])
	return sess, nil
}

func (r *Redis) create(ctx context.Context) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:           NewID(),
		CreatedAt:    now,
		LastActiveAt: now,
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, metaKey(sess.ID),
		"created_at", now.Format(time.RFC3339Nano),
		"last_active_at", now.Format(time.RFC3339Nano),
		"clarify_count", 0,
	)
	pipe.Expire(ctx, metaKey(sess.ID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errx.WrapRedis(err)
	}

	logx.Debug().Str("session_id", sess.ID).Msg("Created session")
	return sess, nil
}

func (r *Redis) AppendTurn(ctx context.Context, id string, turn model.Turn) error {
	exists, err := r.client.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	row, err := json.Marshal(turn)
	if err != nil {
		return errx.New(errx.KindSessionStore, err, "encoding session turn failed")
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(id), row)
	pipe.HSet(ctx, metaKey(id), "last_active_at", time.Now().UTC().Format(time.RFC3339Nano))
	if turn.Clarification {
		pipe.HIncrBy(ctx, metaKey(id), "clarify_count", 1)
	}
	pipe.Expire(ctx, metaKey(id), r.ttl)
	pipe.Expire(ctx, turnsKey(id), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, metaKey(id), turnsKey(id)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// EvictExpired is a no-op; Redis expires keys natively.
func (r *Redis) EvictExpired(context.Context) (int, error) {
	return 0, nil
}

func (r *Redis) ActiveCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, metaKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, errx.WrapRedis(err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
