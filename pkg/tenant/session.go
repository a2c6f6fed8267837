// Package tenant resolves the (user, organization, role) context for a
// request and manages the per-session active-organization selection.
package tenant

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const activeOrgKeyPrefix = "workbench:active_org:"

// SessionStore persists the per-session active organization selection in
// Redis. The selection is a hint: the resolver always re-validates it
// against memberships.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store around an existing Redis client.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// NewRedisClient creates a Redis client from a URL and verifies connectivity.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// GetActiveOrg returns the selected organization for the session, if any.
func (s *SessionStore) GetActiveOrg(ctx context.Context, sessionID string) (int64, bool, error) {
	value, err := s.client.Get(ctx, activeOrgKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read active org: %w", err)
	}

	orgID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// Corrupt value; treat as no selection and drop it.
		s.client.Del(ctx, activeOrgKeyPrefix+sessionID)
		return 0, false, nil
	}

	return orgID, true, nil
}

// SetActiveOrg stores the selected organization for the session.
func (s *SessionStore) SetActiveOrg(ctx context.Context, sessionID string, orgID int64) error {
	err := s.client.Set(ctx, activeOrgKeyPrefix+sessionID, strconv.FormatInt(orgID, 10), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set active org: %w", err)
	}
	return nil
}

// ClearActiveOrg removes the selection, used by the stale-selection
// recovery flow.
func (s *SessionStore) ClearActiveOrg(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, activeOrgKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to clear active org: %w", err)
	}
	return nil
}
