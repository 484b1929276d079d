// Package store's redis_store.go adapts a MongoDB-handler connection-lifecycle
// shape (persistent client, pooled connections, health check,
// context-based shutdown) to github.com/redis/go-redis/v9, the library
// USA-RedDragon/DMRHub uses for the same kv+pubsub role the Store
// interface plays here.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smartfarm/shared"
)

// occupyScript implements the node-occupancy CAS contract server-side:
// succeed iff the node hash exists and occupied_by is unset, then set it.
// A client-side HGET-then-HSET would race (two occupy calls on the same
// free node could both observe "unset" before either writes); this script
// makes the check-and-write atomic at the Redis server.
var occupyScript = redis.NewScript(`
local exists = redis.call("EXISTS", KEYS[1])
if exists == 0 then
	return 0
end
local current = redis.call("HGET", KEYS[1], ARGV[1])
if current and current ~= "" then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// releaseScript clears occupied_by iff it currently equals the requesting
// robot, or robotID is empty (release-unconditionally, reached from the
// admin node-release endpoint when no robot is given).
var releaseScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1])
if not current or current == "" then
	return 0
end
if ARGV[2] ~= "" and current ~= ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], "")
return 1
`)

// RedisStore implements Store over a single persistent redis.Client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis using the process-wide configuration. The
// returned store's Close method should be deferred by the composition
// root, matching a MongodbHandler.Stop lifecycle.
func NewRedisStore(ctx context.Context) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     shared.AppConfig.RedisAddr,
		Password: shared.AppConfig.RedisPassword,
		DB:       shared.AppConfig.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", shared.AppConfig.RedisAddr, err)
	}

	shared.DebugPrint("Connected to redis at %s", shared.AppConfig.RedisAddr)
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		if err != redis.Nil {
			shared.DebugError(fmt.Errorf("HGET %s %s: %w", key, field, err))
		}
		return "", false
	}
	return val, true
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) bool {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		shared.DebugError(fmt.Errorf("HSET %s %s: %w", key, field, err))
		return false
	}
	return true
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) map[string]string {
	val, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		shared.DebugError(fmt.Errorf("HGETALL %s: %w", key, err))
		return nil
	}
	if len(val) == 0 {
		return nil
	}
	return val
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) bool {
	if err := s.client.HDel(ctx, key, field).Err(); err != nil {
		shared.DebugError(fmt.Errorf("HDEL %s %s: %w", key, field, err))
		return false
	}
	return true
}

func (s *RedisStore) HExists(ctx context.Context, key, field string) bool {
	ok, err := s.client.HExists(ctx, key, field).Result()
	if err != nil {
		shared.DebugError(fmt.Errorf("HEXISTS %s %s: %w", key, field, err))
		return false
	}
	return ok
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		shared.DebugError(fmt.Errorf("SET %s: %w", key, err))
		return false
	}
	return true
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			shared.DebugError(fmt.Errorf("GET %s: %w", key, err))
		}
		return "", false
	}
	return val, true
}

func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		shared.DebugError(fmt.Errorf("DEL %s: %w", key, err))
		return false
	}
	return true
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		shared.DebugError(fmt.Errorf("EXPIRE %s: %w", key, err))
		return false
	}
	return true
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("SCAN %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel, message string) bool {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		shared.DebugError(fmt.Errorf("PUBLISH %s: %w", channel, err))
		return false
	}
	return true
}

func (s *RedisStore) Subscribe(ctx context.Context, pattern string, handler func(channel, message string)) (func(), error) {
	sub := s.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}

	ch := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, msg.Payload)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		sub.Close()
	}
	return unsubscribe, nil
}

func (s *RedisStore) OccupyNode(ctx context.Context, nodeKey, occupiedByField, robotID string) (bool, error) {
	res, err := occupyScript.Run(ctx, s.client, []string{nodeKey}, occupiedByField, robotID).Int()
	if err != nil {
		return false, fmt.Errorf("occupy %s: %w", nodeKey, err)
	}
	return res == 1, nil
}

func (s *RedisStore) ReleaseNode(ctx context.Context, nodeKey, occupiedByField, robotID string) (bool, error) {
	res, err := releaseScript.Run(ctx, s.client, []string{nodeKey}, occupiedByField, robotID).Int()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", nodeKey, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
