// Package mongo stores identities and attendance in MongoDB collections.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	studentsCollection   = "students"
	facultyCollection    = "faculties"
	attendanceCollection = "attendances"
)

// DB is a connected client bound to one database.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials uri and verifies the primary answers within a bounded wait.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	if uri == "" {
		return nil, errors.New("mongo URI is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &DB{Client: client, Database: client.Database(database)}, nil
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.Client.Disconnect(ctx)
}

// EnsureIndexes creates the unique keys and query indexes. It is safe to run repeatedly.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		studentsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "rollNo", Value: 1}}, Options: unique},
		},
		facultyCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "employeeId", Value: 1}}, Options: unique},
		},
		attendanceCollection: {
			{Keys: bson.D{{Key: "studentId", Value: 1}}},
			{Keys: bson.D{{Key: "subject", Value: 1}}},
			{Keys: bson.D{{Key: "date", Value: -1}, {Key: "entryTime", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "class", Value: 1}, {Key: "division", Value: 1}, {Key: "date", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := d.Database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}
