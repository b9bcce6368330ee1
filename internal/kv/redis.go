// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the cache with Redis so samples are visible across
// processes. Samples are stored without TTL as a small JSON envelope
// preserving the type tag.
type RedisStore struct {
	client *redis.Client
}

type redisSample struct {
	Value any     `json:"v"`
	Type  TypeTag `json:"t"`
	At    int64   `json:"at"`
}

// NewRedisStore connects to addr (host:port).
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Sample, bool, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Sample{}, false, nil
	}
	if err != nil {
		return Sample{}, false, fmt.Errorf("kv: redis get %s: %w", key, err)
	}
	s, err := decodeRedisSample(raw)
	if err != nil {
		return Sample{}, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value any, tag TypeTag) error {
	raw, err := json.Marshal(redisSample{Value: value, Type: tag, At: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("kv: redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Scan(ctx context.Context, pattern string) (map[string]Sample, error) {
	out := make(map[string]Sample)

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return nil, fmt.Errorf("kv: redis scan %s: %w", pattern, err)
		}
		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("kv: redis get %s: %w", key, err)
			}
			s, err := decodeRedisSample(raw)
			if err != nil {
				continue // foreign key in the namespace, skip
			}
			out[key] = s
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

func (r *RedisStore) Close() error { return r.client.Close() }

func decodeRedisSample(raw string) (Sample, error) {
	var rs redisSample
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return Sample{}, fmt.Errorf("kv: decode sample: %w", err)
	}
	return Sample{Value: rs.Value, Type: rs.Type, UpdatedAt: time.UnixMilli(rs.At)}, nil
}
