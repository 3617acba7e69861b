package modelstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "leadscore:model:"

// RedisStore keeps each artifact under one key; SET replaces it atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a connected client. An empty prefix uses the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and pings the server.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &PersistenceError{Op: "init", Err: err}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &PersistenceError{Op: "init", Err: err}
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) key(orgID string) string {
	return s.prefix + orgID
}

func (s *RedisStore) Save(ctx context.Context, orgID string, artifact *Artifact) error {
	if err := validateOrgID(orgID); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	data, err := Encode(artifact)
	if err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	if err := s.client.Set(ctx, s.key(orgID), data, 0).Err(); err != nil {
		return &PersistenceError{Op: "save", OrganizationID: orgID, Err: err}
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, orgID string) (*Artifact, error) {
	if err := validateOrgID(orgID); err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	data, err := s.client.Get(ctx, s.key(orgID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	a, err := Decode(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", OrganizationID: orgID, Err: err}
	}
	return a, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
