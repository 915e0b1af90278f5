// Package notify keeps a short per-faculty feed of attendance events for the dashboard.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMax is the feed length used when none is configured.
const DefaultMax = 100

// Notification is one feed entry.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	RecordID    string    `json:"recordId,omitempty"`
	StudentID   string    `json:"studentId,omitempty"`
	StudentName string    `json:"studentName,omitempty"`
	RollNo      string    `json:"rollNo,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Feed is the abstraction over different backends. List returns newest first.
type Feed interface {
	Publish(ctx context.Context, facultyID string, n Notification) error
	List(ctx context.Context, facultyID string, limit int) ([]Notification, error)
	Clear(ctx context.Context, facultyID string) error
}

// InMemory is a map of capped slices for dev/testing.
type InMemory struct {
	mu    sync.RWMutex
	max   int
	feeds map[string][]Notification
}

// NewInMemory creates a feed keeping at most max entries per faculty member.
func NewInMemory(max int) *InMemory {
	if max <= 0 {
		max = DefaultMax
	}
	return &InMemory{max: max, feeds: make(map[string][]Notification)}
}

// Publish prepends n and drops the oldest entries past the cap.
func (f *InMemory) Publish(ctx context.Context, facultyID string, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	feed := append([]Notification{n}, f.feeds[facultyID]...)
	if len(feed) > f.max {
		feed = feed[:f.max]
	}
	f.feeds[facultyID] = feed
	return nil
}

// List returns up to limit entries; limit <= 0 means all.
func (f *InMemory) List(_ context.Context, facultyID string, limit int) ([]Notification, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	feed := f.feeds[facultyID]
	if limit > 0 && limit < len(feed) {
		feed = feed[:limit]
	}
	return append([]Notification{}, feed...), nil
}

// Clear empties the feed.
func (f *InMemory) Clear(_ context.Context, facultyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.feeds, facultyID)
	return nil
}

// RedisFeed keeps one capped list per faculty member using LPUSH/LTRIM.
type RedisFeed struct {
	client *redis.Client
	prefix string
	max    int
}

// NewRedisFeed builds a feed under the given key prefix.
func NewRedisFeed(client *redis.Client, prefix string, max int) *RedisFeed {
	if prefix == "" {
		prefix = "attendance:notifications:"
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &RedisFeed{client: client, prefix: prefix, max: max}
}

func (f *RedisFeed) key(facultyID string) string {
	return f.prefix + facultyID
}

// Publish pushes n and trims the list in one round trip.
func (f *RedisFeed) Publish(ctx context.Context, facultyID string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = f.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, f.key(facultyID), body)
		p.LTrim(ctx, f.key(facultyID), 0, int64(f.max-1))
		return nil
	})
	return err
}

// List returns up to limit entries; limit <= 0 means all. Undecodable entries are skipped.
func (f *RedisFeed) List(ctx context.Context, facultyID string, limit int) ([]Notification, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := f.client.LRange(ctx, f.key(facultyID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}
	res := make([]Notification, 0, len(raw))
	for _, s := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(s), &n); err == nil {
			res = append(res, n)
		}
	}
	return res, nil
}

// Clear deletes the list.
func (f *RedisFeed) Clear(ctx context.Context, facultyID string) error {
	return f.client.Del(ctx, f.key(facultyID)).Err()
}
