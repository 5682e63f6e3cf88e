package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetsim/internal/profile"
)

// RedisStore keeps entities as JSON documents and status as a hash per profile.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects lazily to the redis server at addr.
func NewRedisStore(addr, prefix string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		now:    time.Now,
	}
}

// Close releases the redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(kind, id string) string {
	return s.prefix + ":" + kind + ":" + id
}

func (s *RedisStore) statusKey(profileID string) string {
	return s.key("profile", profileID) + ":status"
}

func (s *RedisStore) getJSON(ctx context.Context, kind, id string, v any) error {
	data, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *RedisStore) putJSON(ctx context.Context, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(kind, id), data, 0).Err()
}

// Profile loads a profile and attaches its status hash when present.
func (s *RedisStore) Profile(ctx context.Context, id string) (*profile.Profile, error) {
	var p profile.Profile
	if err := s.getJSON(ctx, "profile", id, &p); err != nil {
		return nil, err
	}
	fields, err := s.client.HGetAll(ctx, s.statusKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		st, err := decodeStatus(fields)
		if err != nil {
			return nil, fmt.Errorf("profile %s status: %w", id, err)
		}
		p.Status = st
	}
	return &p, nil
}

// Schema loads a schema.
func (s *RedisStore) Schema(ctx context.Context, id string) (*profile.Schema, error) {
	var sc profile.Schema
	if err := s.getJSON(ctx, "schema", id, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Broker loads a broker.
func (s *RedisStore) Broker(ctx context.Context, id string) (*profile.Broker, error) {
	var b profile.Broker
	if err := s.getJSON(ctx, "broker", id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// PatchStatus writes the set fields of patch into the profile's status hash.
// Each hash field holds the JSON encoding of one status field.
func (s *RedisStore) PatchStatus(ctx context.Context, profileID string, patch profile.StatusPatch) error {
	n, err := s.client.Exists(ctx, s.key("profile", profileID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	updated, _ := json.Marshal(s.now())
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = string(v)
	}
	values["updatedAt"] = string(updated)
	return s.client.HSet(ctx, s.statusKey(profileID), values).Err()
}

// Ping checks the redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Import writes every entity of doc, replacing existing documents with the same id.
func (s *RedisStore) Import(ctx context.Context, doc Document) error {
	for _, b := range doc.Brokers {
		if err := s.putJSON(ctx, "broker", b.ID, b); err != nil {
			return fmt.Errorf("broker %s: %w", b.ID, err)
		}
	}
	for _, sc := range doc.Schemas {
		if err := s.putJSON(ctx, "schema", sc.ID, sc); err != nil {
			return fmt.Errorf("schema %s: %w", sc.ID, err)
		}
	}
	for _, p := range doc.Profiles {
		p.Status = nil
		if err := s.putJSON(ctx, "profile", p.ID, p); err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}
	}
	return nil
}

func decodeStatus(fields map[string]string) (*profile.Status, error) {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw[k] = json.RawMessage(v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var st profile.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
