// Package storeredis supplies a Redis-backed "already triggered" set for
// a deployment that fans one logical phase's lazy-computation registry
// out across multiple store processes sharing one entity universe. Each
// process still runs its own single-process engine; TriggerSet only
// arbitrates which process gets to trigger a given (kind, entity) pair
// first.
package storeredis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// TriggerSet claims (kind, entity) pairs via Redis SETNX.
type TriggerSet struct {
	client *redis.Client
	prefix string
}

// NewTriggerSet builds a TriggerSet. prefix defaults to
// "propertystore:triggered:" when empty.
func NewTriggerSet(client *redis.Client, prefix string) *TriggerSet {
	if prefix == "" {
		prefix = "propertystore:triggered:"
	}
	return &TriggerSet{client: client, prefix: prefix}
}

func (t *TriggerSet) key(kindName, entityKey string) string {
	return t.prefix + kindName + ":" + entityKey
}

// TryTrigger reports whether this call is the first, process-spanning
// claim on (kindName, entityKey). A false result means another process
// already triggered the computation for this pair, and the caller should
// not call Store.Force itself.
func (t *TriggerSet) TryTrigger(ctx context.Context, kindName, entityKey string) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.key(kindName, entityKey), 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("storeredis: setnx %s: %w", t.key(kindName, entityKey), err)
	}
	return ok, nil
}

// Clear removes a trigger claim, for tests or for a phase that wants to
// allow retriggering a pair after a failed attempt.
func (t *TriggerSet) Clear(ctx context.Context, kindName, entityKey string) error {
	if err := t.client.Del(ctx, t.key(kindName, entityKey)).Err(); err != nil {
		return fmt.Errorf("storeredis: del %s: %w", t.key(kindName, entityKey), err)
	}
	return nil
}
