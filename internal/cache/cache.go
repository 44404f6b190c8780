// Package cache puts a Redis read-through cache in front of a record store's
// thread listings.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/live-comments/internal/domain"
)

// DefaultTTL bounds how long a cached thread listing is served.
const DefaultTTL = 5 * time.Minute

// A comment is the Redis hash stored under comment:ID.
type comment struct {
	ID         string `redis:"id"`
	PostID     string `redis:"post_id"`
	UserID     string `redis:"user_id"`
	UserName   string `redis:"user_name"`
	Text       string `redis:"text"`
	InsertedAt int64  `redis:"inserted_at"`
}

func (c comment) domainComment() domain.Comment {
	return domain.Comment{
		ID:         c.ID,
		ThreadID:   c.PostID,
		AuthorID:   c.UserID,
		AuthorName: c.UserName,
		Body:       c.Text,
		InsertedAt: time.UnixMilli(c.InsertedAt).UTC(),
	}
}

func fromDomain(c domain.Comment) *comment {
	return &comment{
		ID:         c.ID,
		PostID:     c.ThreadID,
		UserID:     c.AuthorID,
		UserName:   c.AuthorName,
		Text:       c.Body,
		InsertedAt: c.InsertedAt.UnixMilli(),
	}
}

func commentKey(id string) string { return "comment:" + id }

func threadKey(threadID string) string { return "thread:" + threadID + ":comments" }

// markerKey is set while a thread's listing is cached, which tells an
// empty thread apart from a miss.
func markerKey(threadID string) string { return "thread:" + threadID + ":cached" }

// Cache wraps a RecordStore. Comment listings are served from Redis when
// cached and every comment mutation invalidates the affected thread. Redis
// failures fall back to the wrapped store.
type Cache struct {
	domain.RecordStore

	cli    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Connect parses redisURL, pings the server and wraps store.
func Connect(ctx context.Context, redisURL string, store domain.RecordStore, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli, store, DefaultTTL, logger), nil
}

// New wraps store with a cache on cli.
func New(cli *redis.Client, store domain.RecordStore, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{RecordStore: store, cli: cli, ttl: ttl, logger: logger}
}

// Close closes the Redis client. The wrapped store is left open.
func (c *Cache) Close() error {
	return c.cli.Close()
}

// ListComments returns the comments of a thread, newest first.
func (c *Cache) ListComments(ctx context.Context, threadID string) ([]domain.Comment, error) {
	comments, ok, err := c.cached(ctx, threadID)
	if err != nil {
		c.logger.Warn("comment cache read failed", "thread_id", threadID, "error", err)
	}
	if ok {
		return comments, nil
	}

	comments, err = c.RecordStore.ListComments(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := c.fill(ctx, threadID, comments); err != nil {
		c.logger.Warn("comment cache fill failed", "thread_id", threadID, "error", err)
	}
	return comments, nil
}

func (c *Cache) cached(ctx context.Context, threadID string) ([]domain.Comment, bool, error) {
	n, err := c.cli.Exists(ctx, markerKey(threadID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("exists: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	// Equal scores come back in descending member order, which is
	// descending ID.
	keys, err := c.cli.ZRevRange(ctx, threadKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("zrevrange: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = c.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("hgetall: %w", err)
	}

	out := make([]domain.Comment, 0, len(keys))
	for _, cmd := range cmds {
		var cm comment
		if err := cmd.Scan(&cm); err != nil {
			return nil, false, fmt.Errorf("scan comment: %w", err)
		}
		if cm.ID == "" {
			// A hash expired ahead of the listing.
			return nil, false, nil
		}
		out = append(out, cm.domainComment())
	}
	return out, true, nil
}

func (c *Cache) fill(ctx context.Context, threadID string, comments []domain.Comment) error {
	_, err := c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		zkey := threadKey(threadID)
		pipe.Del(ctx, zkey)
		for _, dc := range comments {
			key := commentKey(dc.ID)
			pipe.HSet(ctx, key, fromDomain(dc))
			pipe.Expire(ctx, key, c.ttl)
			pipe.ZAdd(ctx, zkey, redis.Z{
				Score:  float64(dc.InsertedAt.UnixMilli()),
				Member: key,
			})
		}
		pipe.Expire(ctx, zkey, c.ttl)
		pipe.Set(ctx, markerKey(threadID), 1, c.ttl)
		return nil
	})
	return err
}

func (c *Cache) invalidate(ctx context.Context, threadID string, commentIDs ...string) {
	keys := []string{markerKey(threadID), threadKey(threadID)}
	for _, id := range commentIDs {
		keys = append(keys, commentKey(id))
	}
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("comment cache invalidation failed", "thread_id", threadID, "error", err)
	}
}

// CreateComment stores the comment and invalidates its thread.
func (c *Cache) CreateComment(ctx context.Context, nc domain.NewComment) (domain.Comment, error) {
	created, err := c.RecordStore.CreateComment(ctx, nc)
	if err != nil {
		return domain.Comment{}, err
	}
	c.invalidate(ctx, created.ThreadID)
	return created, nil
}

// UpdateCommentBody updates the comment and invalidates its thread.
func (c *Cache) UpdateCommentBody(ctx context.Context, id, body string) (domain.Comment, error) {
	updated, err := c.RecordStore.UpdateCommentBody(ctx, id, body)
	if err != nil {
		return domain.Comment{}, err
	}
	c.invalidate(ctx, updated.ThreadID, id)
	return updated, nil
}

// DeleteComment deletes the comment and invalidates its thread. The thread
// is read from the store when the comment is not cached.
func (c *Cache) DeleteComment(ctx context.Context, id string) error {
	threadID, err := c.cli.HGet(ctx, commentKey(id), "post_id").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("comment cache lookup failed", "comment_id", id, "error", err)
	}
	if threadID == "" {
		existing, err := c.RecordStore.GetComment(ctx, id)
		switch {
		case err == nil:
			threadID = existing.ThreadID
		case errors.Is(err, domain.ErrNotFound):
		default:
			return err
		}
	}

	if err := c.RecordStore.DeleteComment(ctx, id); err != nil {
		return err
	}

	if threadID != "" {
		c.invalidate(ctx, threadID, id)
	}
	return nil
}

// DeleteThreadComments deletes the thread's comments and drops its cache
// entries.
func (c *Cache) DeleteThreadComments(ctx context.Context, threadID string) (int64, error) {
	keys, err := c.cli.ZRange(ctx, threadKey(threadID), 0, -1).Result()
	if err != nil {
		c.logger.Warn("comment cache lookup failed", "thread_id", threadID, "error", err)
	}

	n, err := c.RecordStore.DeleteThreadComments(ctx, threadID)
	if err != nil {
		return 0, err
	}

	keys = append(keys, markerKey(threadID), threadKey(threadID))
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("comment cache invalidation failed", "thread_id", threadID, "error", err)
	}
	return n, nil
}
