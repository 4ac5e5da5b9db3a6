/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package offsetstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/redis/go-redis/v9"

	"github.com/launix-de/restructure/internal/offsetset"
)

// redisRange is the wire shape of one stored interval within the envelope.
type redisRange struct {
	Topic         string    `json:"topic"`
	Partition     int       `json:"partition"`
	From          int64     `json:"from"`
	To            int64     `json:"to"`
	LastProcessed time.Time `json:"last_processed"`
}

// redisEnvelope is the full per-topic JSON document, LZ4-framed before SET.
type redisEnvelope struct {
	Version int          `json:"version"`
	Ranges  []redisRange `json:"ranges"`
}

const redisEnvelopeVersion = 1

// RedisStore persists one key per topic via go-redis. Values are a
// version-tagged JSON envelope, LZ4-framed to keep memory pressure on the
// redis side down for topics with many partitions/ranges.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "restructure:offsets:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisStore) key(topic string) string {
	return r.keyPrefix + topic
}

func (r *RedisStore) Read(topic string) (*offsetset.Set, error) {
	ctx := context.Background()
	framed, err := r.client.Get(ctx, r.key(topic)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plain, err := unframe(framed)
	if err != nil {
		return nil, err
	}

	var env redisEnvelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, err
	}

	set := offsetset.New()
	for _, rr := range env.Ranges {
		tp := offsetset.TopicPartition{Topic: rr.Topic, Partition: rr.Partition}
		set.Add(tp, offsetset.OffsetRange{From: rr.From, To: rr.To, LastProcessed: rr.LastProcessed})
	}
	return set, nil
}

func (r *RedisStore) Write(topic string, set *offsetset.Set) error {
	var env redisEnvelope
	env.Version = redisEnvelopeVersion
	for _, tp := range set.Partitions() {
		for _, rg := range set.Ranges(tp) {
			env.Ranges = append(env.Ranges, redisRange{
				Topic:         tp.Topic,
				Partition:     tp.Partition,
				From:          rg.From,
				To:            rg.To,
				LastProcessed: rg.LastProcessed,
			})
		}
	}

	plain, err := json.Marshal(env)
	if err != nil {
		return err
	}
	framed, err := frame(plain)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return r.client.Set(ctx, r.key(topic), framed, r.ttl).Err()
}

func frame(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unframe(framed []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(framed))
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("offsetstore: lz4 decode: %w", err)
	}
	return plain, nil
}
