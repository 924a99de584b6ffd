package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
)

// UserStateStore keeps small per-user values under (namespace, userID, key).
// Values never expire; writes are last-writer-wins.
type UserStateStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.StateStore = (*UserStateStore)(nil)

// NewUserStateStore creates a UserStateStore with the "userstate:" key prefix.
func NewUserStateStore(client redis.UniversalClient) *UserStateStore {
	return &UserStateStore{client: client, prefix: "userstate:"}
}

func (s *UserStateStore) key(namespace, userID, key string) (string, error) {
	if namespace == "" || userID == "" || key == "" {
		return "", apperrors.Validation("namespace, userID and key are required")
	}
	// The user id sits in a hash tag so all of a user's keys share a cluster slot.
	return s.prefix + namespace + ":{" + userID + "}:" + key, nil
}

// Get returns the stored value and whether it exists.
func (s *UserStateStore) Get(ctx context.Context, namespace, userID, key string) ([]byte, bool, error) {
	k, err := s.key(namespace, userID, key)
	if err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get user state: %w", err)
	}
	return data, true, nil
}

// Set overwrites the stored value.
func (s *UserStateStore) Set(ctx context.Context, namespace, userID, key string, value []byte) error {
	k, err := s.key(namespace, userID, key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, k, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set user state: %w", err)
	}
	return nil
}
