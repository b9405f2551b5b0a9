package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "yolotrain:progress"

// Each record is a hash with the scalar fields plus a list holding the log lines. Mutations
// that must only apply to existing records run as Lua scripts so they are atomic.
var (
	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'progress', ARGV[1], 'current_epoch', ARGV[2])
if ARGV[3] ~= '' then redis.call('RPUSH', KEYS[2], ARGV[3]) end
return 1`)

	markFailedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'status', 'failed', 'error', ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1`)

	markStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1`)
)

// RedisStore implements Store on top of Redis so several API processes on one machine see the
// same progress. Like the in-memory store it is not the system of record.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis backed progress store and verifies the connection
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) keys(taskID int64) []string {
	key := fmt.Sprintf("%s:%d", r.prefix, taskID)
	return []string{key, key + ":logs"}
}

func (r *RedisStore) Start(ctx context.Context, taskID int64) error {
	keys := r.keys(taskID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.HSet(ctx, keys[0],
			"status", string(StatusStarting),
			"progress", "0",
			"current_epoch", "0",
			"error", "",
		)
		return nil
	})
	return err
}

func (r *RedisStore) Update(ctx context.Context, taskID int64, progress float64, epoch int, logLine string) error {
	return updateScript.Run(ctx, r.client, r.keys(taskID),
		strconv.FormatFloat(progress, 'f', -1, 64), epoch, logLine).Err()
}

func (r *RedisStore) Get(ctx context.Context, taskID int64) (Record, error) {
	keys := r.keys(taskID)

	var fields *redis.MapStringStringCmd
	var logs *redis.StringSliceCmd
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, keys[0])
		logs = pipe.LRange(ctx, keys[1], 0, -1)
		return nil
	}); err != nil {
		return Unknown(), err
	}

	values := fields.Val()
	if len(values) == 0 {
		return Unknown(), nil
	}

	rec := Record{
		Status: Status(values["status"]),
		Error:  values["error"],
		Logs:   logs.Val(),
	}
	if rec.Logs == nil {
		rec.Logs = []string{}
	}

	var err error
	if rec.Progress, err = strconv.ParseFloat(values["progress"], 64); err != nil {
		return Unknown(), fmt.Errorf("corrupt progress for task %d: %w", taskID, err)
	}
	if rec.CurrentEpoch, err = strconv.Atoi(values["current_epoch"]); err != nil {
		return Unknown(), fmt.Errorf("corrupt epoch for task %d: %w", taskID, err)
	}
	return rec, nil
}

func (r *RedisStore) MarkFailed(ctx context.Context, taskID int64, errText string) error {
	return markFailedScript.Run(ctx, r.client, r.keys(taskID), errText).Err()
}

func (r *RedisStore) MarkStatus(ctx context.Context, taskID int64, status Status) error {
	return markStatusScript.Run(ctx, r.client, r.keys(taskID), string(status)).Err()
}

// Delete removes the record of a task
func (r *RedisStore) Delete(ctx context.Context, taskID int64) error {
	return r.client.Del(ctx, r.keys(taskID)...).Err()
}

// Close terminates the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
