//go:build integration

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisFeed(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	f := NewRedisFeed(client, "test:feed:", 2)

	for _, id := range []string{"a", "b", "c"} {
		if err := f.Publish(ctx, "f1", Notification{ID: id}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	got, err := f.List(ctx, "f1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("List() = %+v", got)
	}

	if err := f.Clear(ctx, "f1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := f.List(ctx, "f1", 0); len(got) != 0 {
		t.Errorf("List() after Clear = %+v", got)
	}
}
