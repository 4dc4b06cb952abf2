package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	// Prefix is prepended to the storage keys, e.g. a device id.
	Prefix string
}

// RedisStore keeps the contact list as a JSON string and the display name
// as a plain string.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) Contacts(ctx context.Context) ([]Contact, error) {
	raw, err := s.client.Get(ctx, s.prefix+ContactsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []Contact
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return list, nil
}

func (s *RedisStore) SaveContacts(ctx context.Context, list []Contact) error {
	if list == nil {
		list = []Contact{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+ContactsKey, data, 0).Err()
}

func (s *RedisStore) UserName(ctx context.Context) (string, error) {
	name, err := s.client.Get(ctx, s.prefix+UserNameKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return name, err
}

func (s *RedisStore) SaveUserName(ctx context.Context, name string) error {
	return s.client.Set(ctx, s.prefix+UserNameKey, name, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
