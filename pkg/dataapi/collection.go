package dataapi

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Database is a handle on a database within an Atlas data source.
type Database struct {
	caller     Caller
	dataSource string
	name       string
}

// NewDatabase creates a database handle. Most callers obtain one through
// appclient.App.Database instead.
func NewDatabase(caller Caller, dataSource, name string) *Database {
	return &Database{caller: caller, dataSource: dataSource, name: name}
}

// Collection returns a handle on a collection within the database.
func (d *Database) Collection(name string) *Collection {
	return &Collection{
		caller: d.caller,
		sel: Selector{
			DataSource: d.dataSource,
			Database:   d.name,
			Collection: name,
		},
	}
}

// Collection issues CRUD and aggregation operations against a single
// collection.
type Collection struct {
	caller Caller
	sel    Selector
}

// FindOptions carries the optional parameters of Find.
type FindOptions struct {
	Filter     bson.M
	Projection bson.M
	Sort       bson.M
	Limit      int32
	Skip       int32
}

type findRequest struct {
	Selector   `bson:",inline"`
	Filter     bson.M `bson:"filter,omitempty"`
	Projection bson.M `bson:"projection,omitempty"`
	Sort       bson.M `bson:"sort,omitempty"`
	Limit      int32  `bson:"limit,omitempty"`
	Skip       int32  `bson:"skip,omitempty"`
}

type insertRequest struct {
	Selector  `bson:",inline"`
	Document  any   `bson:"document,omitempty"`
	Documents []any `bson:"documents,omitempty"`
}

type updateRequest struct {
	Selector `bson:",inline"`
	Filter   bson.M `bson:"filter"`
	Update   bson.M `bson:"update"`
	Upsert   bool   `bson:"upsert,omitempty"`
}

type replaceRequest struct {
	Selector    `bson:",inline"`
	Filter      bson.M `bson:"filter"`
	Replacement any    `bson:"replacement"`
	Upsert      bool   `bson:"upsert,omitempty"`
}

type deleteRequest struct {
	Selector `bson:",inline"`
	Filter   bson.M `bson:"filter"`
}

type aggregateRequest struct {
	Selector `bson:",inline"`
	Pipeline []bson.M `bson:"pipeline"`
}

type findOneResult struct {
	// Document is a pointer because the backend sends an explicit null when
	// nothing matches, and null cannot decode into an embedded document.
	Document *bson.Raw `bson:"document"`
}

type findResult struct {
	Documents []bson.Raw `bson:"documents"`
}

// InsertOneResult reports the id assigned to an inserted document.
type InsertOneResult struct {
	InsertedID primitive.ObjectID `bson:"insertedId"`
}

// InsertManyResult reports the ids assigned to inserted documents, in input
// order.
type InsertManyResult struct {
	InsertedIDs []primitive.ObjectID `bson:"insertedIds"`
}

// UpdateResult reports the outcome of an update or replace operation.
type UpdateResult struct {
	MatchedCount  int64               `bson:"matchedCount"`
	ModifiedCount int64               `bson:"modifiedCount"`
	UpsertedID    *primitive.ObjectID `bson:"upsertedId,omitempty"`
}

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	DeletedCount int64 `bson:"deletedCount"`
}

// FindOne returns the first document matching filter, or nil when nothing
// matches. projection may be nil.
func (c *Collection) FindOne(ctx context.Context, filter, projection bson.M) (bson.Raw, error) {
	op := Operation{Action: ActionFindOne, Body: findRequest{
		Selector:   c.sel,
		Filter:     filter,
		Projection: projection,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result findOneResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	if result.Document == nil {
		return nil, nil
	}
	return *result.Document, nil
}

// Find returns the documents matching opts.Filter, subject to projection,
// sort, limit and skip.
func (c *Collection) Find(ctx context.Context, opts FindOptions) ([]bson.Raw, error) {
	op := Operation{Action: ActionFind, Body: findRequest{
		Selector:   c.sel,
		Filter:     opts.Filter,
		Projection: opts.Projection,
		Sort:       opts.Sort,
		Limit:      opts.Limit,
		Skip:       opts.Skip,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result findResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return result.Documents, nil
}

// InsertOne inserts a single document.
func (c *Collection) InsertOne(ctx context.Context, document any) (*InsertOneResult, error) {
	op := Operation{Action: ActionInsertOne, Body: insertRequest{
		Selector: c.sel,
		Document: document,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result InsertOneResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InsertMany inserts the given documents.
func (c *Collection) InsertMany(ctx context.Context, documents []any) (*InsertManyResult, error) {
	op := Operation{Action: ActionInsertMany, Body: insertRequest{
		Selector:  c.sel,
		Documents: documents,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result InsertManyResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateOne applies update to the first document matching filter. With
// upsert, a non-matching filter inserts a new document instead.
func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.M, upsert bool) (*UpdateResult, error) {
	return c.update(ctx, ActionUpdateOne, filter, update, upsert)
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.M, upsert bool) (*UpdateResult, error) {
	return c.update(ctx, ActionUpdateMany, filter, update, upsert)
}

func (c *Collection) update(ctx context.Context, action string, filter, update bson.M, upsert bool) (*UpdateResult, error) {
	op := Operation{Action: action, Body: updateRequest{
		Selector: c.sel,
		Filter:   filter,
		Update:   update,
		Upsert:   upsert,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result UpdateResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReplaceOne overwrites the first document matching filter with replacement.
func (c *Collection) ReplaceOne(ctx context.Context, filter bson.M, replacement any, upsert bool) (*UpdateResult, error) {
	op := Operation{Action: ActionReplaceOne, Body: replaceRequest{
		Selector:    c.sel,
		Filter:      filter,
		Replacement: replacement,
		Upsert:      upsert,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result UpdateResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (*DeleteResult, error) {
	return c.delete(ctx, ActionDeleteOne, filter)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (*DeleteResult, error) {
	return c.delete(ctx, ActionDeleteMany, filter)
}

func (c *Collection) delete(ctx context.Context, action string, filter bson.M) (*DeleteResult, error) {
	op := Operation{Action: action, Body: deleteRequest{
		Selector: c.sel,
		Filter:   filter,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result DeleteResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Aggregate runs an aggregation pipeline and returns its output documents.
func (c *Collection) Aggregate(ctx context.Context, pipeline []bson.M) ([]bson.Raw, error) {
	op := Operation{Action: ActionAggregate, Body: aggregateRequest{
		Selector: c.sel,
		Pipeline: pipeline,
	}}

	body, err := c.caller.Call(ctx, op)
	if err != nil {
		return nil, err
	}

	var result findResult
	if err := decodeResult(op.Action, body, &result); err != nil {
		return nil, err
	}
	return result.Documents, nil
}
