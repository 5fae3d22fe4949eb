package offline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps one hash per receiver: key "<prefix>:<receiverID>", field message id, value the
// serialized event.
type Redis struct {
	client *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DialRedis opens a client and pings it before returning.
func DialRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedis(client, opts.Prefix), nil
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "offline"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(receiverID int64) string {
	return r.prefix + ":" + strconv.FormatInt(receiverID, 10)
}

func (r *Redis) Store(ctx context.Context, receiverID int64, messageID string, payload []byte) error {
	if err := r.client.HSet(ctx, r.key(receiverID), messageID, payload).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", r.key(receiverID), messageID, err)
	}
	return nil
}

func (r *Redis) RetrieveAll(ctx context.Context, receiverID int64) (map[string][]byte, error) {
	fields, err := r.client.HGetAll(ctx, r.key(receiverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key(receiverID), err)
	}
	out := make(map[string][]byte, len(fields))
	for id, payload := range fields {
		out[id] = []byte(payload)
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, receiverID int64, messageID string) error {
	if err := r.client.HDel(ctx, r.key(receiverID), messageID).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", r.key(receiverID), messageID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
