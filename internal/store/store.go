// Package store opens the configured persistence backend.
package store

import (
	"context"
	"fmt"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/identity"
	"github.com/campusattend/attendance/internal/store/memory"
	"github.com/campusattend/attendance/internal/store/mongo"
	"github.com/campusattend/attendance/internal/store/postgres"
)

// Backend bundles the repositories of one storage engine.
type Backend struct {
	Name       string
	Identities identity.Store
	Attendance attendance.Repository

	ping    func(context.Context) error
	migrate func(context.Context) error
	close   func() error
}

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.App) (*Backend, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:       cfg.StoreBackend,
			Identities: postgres.NewIdentityRepository(db.Client),
			Attendance: postgres.NewAttendanceRepository(db.Client),
			ping:       db.Ping,
			migrate:    db.Migrate,
			close:      db.Close,
		}, nil
	case "mongo":
		db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:       cfg.StoreBackend,
			Identities: mongo.NewIdentityRepository(db.Database),
			Attendance: mongo.NewAttendanceRepository(db.Database),
			ping:       db.Ping,
			migrate:    db.EnsureIndexes,
			close:      db.Close,
		}, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Backend {
	return &Backend{
		Name:       "memory",
		Identities: memory.NewIdentities(),
		Attendance: memory.NewAttendance(),
	}
}

// Ping reports whether the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Migrate brings the schema or indexes up to date.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return nil
	}
	return b.migrate(ctx)
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}
