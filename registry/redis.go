package registry

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore mirrors the live view of the registry: online agent and
// conductor hostnames plus per-board connectivity status. SQL stays the
// source of truth; the mirror is rebuilt from it on startup.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

const (
	agentsKey      = "iotronic:agents:online"
	conductorsKey  = "iotronic:conductors:online"
	boardStatusKey = "iotronic:boards:status"
)

func (r *RedisStore) AddAgent(ctx context.Context, hostname string) error {
	return r.client.SAdd(ctx, agentsKey, hostname).Err()
}

func (r *RedisStore) RemoveAgent(ctx context.Context, hostname string) error {
	return r.client.SRem(ctx, agentsKey, hostname).Err()
}

func (r *RedisStore) OnlineAgents(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, agentsKey).Result()
}

func (r *RedisStore) AddConductor(ctx context.Context, hostname string) error {
	return r.client.SAdd(ctx, conductorsKey, hostname).Err()
}

func (r *RedisStore) RemoveConductor(ctx context.Context, hostname string) error {
	return r.client.SRem(ctx, conductorsKey, hostname).Err()
}

func (r *RedisStore) OnlineConductors(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, conductorsKey).Result()
}

func (r *RedisStore) SetBoardStatus(ctx context.Context, boardUUID, status string) error {
	return r.client.HSet(ctx, boardStatusKey, boardUUID, status).Err()
}

func (r *RedisStore) BoardStatus(ctx context.Context, boardUUID string) (string, error) {
	status, err := r.client.HGet(ctx, boardStatusKey, boardUUID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return status, err
}

func (r *RedisStore) RemoveBoard(ctx context.Context, boardUUID string) error {
	return r.client.HDel(ctx, boardStatusKey, boardUUID).Err()
}

func (r *RedisStore) BoardStatuses(ctx context.Context) (map[string]string, error) {
	return r.client.HGetAll(ctx, boardStatusKey).Result()
}

// Flush clears every mirrored key before a rebuild.
func (r *RedisStore) Flush(ctx context.Context) error {
	return r.client.Del(ctx, agentsKey, conductorsKey, boardStatusKey).Err()
}
