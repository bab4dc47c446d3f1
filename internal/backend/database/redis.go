package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gorotate:image:"

// RedisDatabase keeps each slot in a hash that expires after ttl of inactivity
type RedisDatabase struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDatabase connects using a redis:// URL, e.g. redis://localhost:6379/0
func NewRedisDatabase(connectionString string, ttl time.Duration) (*RedisDatabase, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	return &RedisDatabase{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (r *RedisDatabase) CreateDatabase(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

func (r *RedisDatabase) Close() error {
	return r.client.Close()
}

func (r *RedisDatabase) fields(img *Image) map[string]any {
	return map[string]any{
		"session_id": img.SessionID,
		"data":       img.Data,
		"media_type": img.MediaType,
		"filename":   img.Filename,
		"width":      img.Width,
		"height":     img.Height,
		"rotation":   img.Rotation,
		"last_error": img.LastError,
		"updated_at": time.Now().UTC().UnixNano(),
	}
}

func (r *RedisDatabase) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

func (r *RedisDatabase) SaveImage(ctx context.Context, img *Image) (int64, error) {
	key := redisKey(img.SessionID)
	var version *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, r.fields(img))
		version = pipe.HIncrBy(ctx, key, "version", 1)
		r.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version.Val(), nil
}

func (r *RedisDatabase) SaveImageIfVersion(ctx context.Context, img *Image, expected int64) (int64, error) {
	key := redisKey(img.SessionID)
	var next int64
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != expected {
			return ErrVersionConflict
		}

		next = current + 1
		fields := r.fields(img)
		fields["version"] = next
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			r.expire(ctx, pipe, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *RedisDatabase) SetLastError(ctx context.Context, sessionID string, message string) error {
	key := redisKey(sessionID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "last_error", message)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// the slot changed underneath; the newer write wins
		return nil
	}
	return err
}

func (r *RedisDatabase) GetImage(ctx context.Context, sessionID string) (*Image, error) {
	values, err := r.client.HGetAll(ctx, redisKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return imageFromHash(values)
}

func imageFromHash(values map[string]string) (*Image, error) {
	img := &Image{
		SessionID: values["session_id"],
		Data:      []byte(values["data"]),
		MediaType: values["media_type"],
		Filename:  values["filename"],
		LastError: values["last_error"],
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"width", &img.Width},
		{"height", &img.Height},
		{"rotation", &img.Rotation},
	}
	for _, f := range ints {
		n, err := strconv.Atoi(values[f.field])
		if err != nil {
			return nil, fmt.Errorf("corrupt %s field: %w", f.field, err)
		}
		*f.dst = n
	}

	version, err := strconv.ParseInt(values["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt version field: %w", err)
	}
	img.Version = version

	updatedAt, err := strconv.ParseInt(values["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt updated_at field: %w", err)
	}
	img.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return img, nil
}

func (r *RedisDatabase) DeleteImage(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, redisKey(sessionID)).Err()
}

// DeleteExpired sweeps slots older than before. Key TTLs normally remove them
// first; the sweep covers databases configured without a TTL.
func (r *RedisDatabase) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	threshold := before.UTC().UnixNano()
	var deleted int64

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		updatedAt, err := r.client.HGet(ctx, key, "updated_at").Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		if updatedAt >= threshold {
			continue
		}
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, iter.Err()
}
