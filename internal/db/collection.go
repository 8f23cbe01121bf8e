package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection defines the collection operations the CMMS store needs.
type Collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
	InsertMany(ctx context.Context, docs []interface{}) error
}

// Cursor defines the interface for cursor operations.
type Cursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}

// MongoCollection adapts a *mongo.Collection to Collection.
type MongoCollection struct {
	Collection *mongo.Collection
}

// Find queries the collection.
func (c *MongoCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// InsertMany inserts docs into the collection.
func (c *MongoCollection) InsertMany(ctx context.Context, docs []interface{}) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := c.Collection.InsertMany(ctx, docs)
	return err
}
