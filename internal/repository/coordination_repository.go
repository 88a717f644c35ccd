package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CoordinationRepository uses Redis for cross-instance coordination:
// exclusive locks for scheduled tasks and idempotency markers for
// externally delivered events.
type CoordinationRepository struct {
	client *redis.Client
}

// NewCoordinationRepository constructs the repository.
func NewCoordinationRepository(client *redis.Client) *CoordinationRepository {
	return &CoordinationRepository{client: client}
}

// AcquireLock takes a named lock for ttl. Returns false when another
// holder already has it.
func (r *CoordinationRepository) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "lock:"+name, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock drops a named lock if still held by owner.
func (r *CoordinationRepository) ReleaseLock(ctx context.Context, name, owner string) error {
	key := "lock:" + name
	held, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	if held != owner {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// ClaimEvent marks an external event as processed. Returns false when the
// event was already claimed, so redelivered events become no-ops.
func (r *CoordinationRepository) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "event:"+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// ReleaseEvent drops an event claim so a redelivery can be processed again.
// Used when handling failed after the claim was taken.
func (r *CoordinationRepository) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, "event:"+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}
