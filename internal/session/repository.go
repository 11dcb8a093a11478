package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session exists for the given ID.
var ErrNotFound = errors.New("submission session not found")

const keyPrefix = "subsession:"

// Record is the persisted shape of a submission session. Only draft content
// and identity survive a restart; pipeline position resets to idle, so a
// recovered session re-validates before submitting again.
type Record struct {
	ID         string                 `json:"id"`
	AccountID  string                 `json:"account_id"`
	Fields     map[string]interface{} `json:"fields"`
	IsEditing  bool                   `json:"is_editing"`
	ListingID  string                 `json:"listing_id,omitempty"`
	State      string                 `json:"state"`
	LastActive time.Time              `json:"last_active"`
}

// IRepository persists session records with a sliding TTL.
type IRepository interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}

type redisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRepository creates a session repository over Redis. Each Save
// refreshes the TTL, so active sessions never expire mid-flow.
func NewRedisRepository(rdb *redis.Client, ttl time.Duration) IRepository {
	return &redisRepository{rdb: rdb, ttl: ttl}
}

func (r *redisRepository) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", rec.ID, err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+rec.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

func (r *redisRepository) Load(ctx context.Context, id string) (Record, error) {
	data, err := r.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return rec, nil
}

func (r *redisRepository) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
