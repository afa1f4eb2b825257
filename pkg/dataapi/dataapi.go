// Package dataapi describes MongoDB Atlas Data API operations.
//
// Each operation is an action name plus a request document posted to
// /action/<name>. Request and response documents are MongoDB extended JSON;
// they are encoded and decoded with the bson package so ObjectIDs, dates and
// other BSON types survive the trip.
//
// The package performs no I/O itself: operations are executed through the
// Caller interface, implemented by appclient.App, which owns authentication
// and retry behavior.
package dataapi

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Data API action names.
const (
	ActionFindOne    = "findOne"
	ActionFind       = "find"
	ActionInsertOne  = "insertOne"
	ActionInsertMany = "insertMany"
	ActionUpdateOne  = "updateOne"
	ActionUpdateMany = "updateMany"
	ActionReplaceOne = "replaceOne"
	ActionDeleteOne  = "deleteOne"
	ActionDeleteMany = "deleteMany"
	ActionAggregate  = "aggregate"
)

// Selector identifies the collection an operation targets. It is flattened
// into every request body.
type Selector struct {
	DataSource string `bson:"dataSource"`
	Database   string `bson:"database"`
	Collection string `bson:"collection"`
}

// Operation is a single Data API request descriptor. Body must be an
// extended-JSON-marshalable document.
type Operation struct {
	Action string
	Body   any
}

// EncodeBody renders the operation body as extended JSON.
func (op Operation) EncodeBody() ([]byte, error) {
	data, err := bson.MarshalExtJSON(op.Body, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op.Action, err)
	}
	return data, nil
}

// Caller executes an operation and returns the raw response body.
// appclient.App implements Caller.
type Caller interface {
	Call(ctx context.Context, op Operation) ([]byte, error)
}

// decodeResult parses an extended JSON response body.
func decodeResult(action string, body []byte, out any) error {
	if err := bson.UnmarshalExtJSON(body, false, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return nil
}
