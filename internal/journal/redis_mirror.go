package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror mirrors committed events into a Redis list alongside the
// on-disk events.jsonl, so a status server process that doesn't share the
// orchestrator's filesystem can still serve a run's event stream. The file
// journal remains the single source of truth; a mirror failure is logged
// and otherwise ignored, never escalated to Journal.Err().
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// defaultMirrorTTL keeps mirrored events around a week, matching the
// retention window a status server would reasonably need to answer
// queries about a recently finished run.
const defaultMirrorTTL = 7 * 24 * time.Hour

// NewRedisMirror builds a mirror for one run's events over an existing
// Redis connection. ttl <= 0 falls back to defaultMirrorTTL.
func NewRedisMirror(client *redis.Client, runID string, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = defaultMirrorTTL
	}
	return &RedisMirror{client: client, key: "oedr:run:" + runID + ":events", ttl: ttl}
}

// Mirror appends e to the run's Redis list and refreshes its TTL.
func (m *RedisMirror) Mirror(ctx context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event for redis mirror: %w", err)
	}
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, m.key, line)
	pipe.Expire(ctx, m.key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror event to redis: %w", err)
	}
	return nil
}

// Events returns every event mirrored for this run so far, oldest first.
// This is the read side a status server uses to answer a run's progress
// without reading the orchestrator's events.jsonl off disk -- the reason
// the mirror exists in the first place.
func (m *RedisMirror) Events(ctx context.Context) ([]Event, error) {
	lines, err := m.client.LRange(ctx, m.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange redis mirror: %w", err)
	}
	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
