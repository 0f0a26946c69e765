package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/logging"
)

const mongoPingTimeout = 10 * time.Second

// MongoStore keeps documents in a single MongoDB collection. Capture state is
// stored in the "capture" subdocument; its absence means the document is
// pending.
type MongoStore struct {
	*emitter
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to uri and verifies the deployment is reachable.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := NewMongoStoreFromCollection(client.Database(database).Collection(collection), logger)
	s.client = client
	return s, nil
}

// NewMongoStoreFromCollection wraps an existing collection. Close does not
// disconnect the collection's client.
func NewMongoStoreFromCollection(coll *mongo.Collection, logger *zap.Logger) *MongoStore {
	logger = logging.OrNop(logger)
	return &MongoStore{
		emitter: newEmitter(logger),
		coll:    coll,
		logger:  logger,
	}
}

// Insert stores doc under its normalized _id.
// Emits a DocumentInsertedEvent after successful insert.
func (s *MongoStore) Insert(ctx context.Context, doc Document) error {
	id, ok := NormalizeID(doc[FieldID])
	if !ok {
		return ErrMissingID
	}
	body := storedBody(doc, id)

	if _, err := s.coll.InsertOne(ctx, bson.M(body)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	s.emit(DocumentInsertedEvent{Document: body})
	return nil
}

// Update applies fields with $set at id.
// Emits a DocumentUpdatedEvent when a document matched.
func (s *MongoStore) Update(ctx context.Context, id string, fields Document) (bool, error) {
	set := bson.M{}
	for k, v := range fields {
		if k == FieldID || k == FieldCapture {
			continue
		}
		set[k] = v
	}

	var matched bool
	if len(set) == 0 {
		// $set rejects an empty document; only report whether the id exists.
		err := s.coll.FindOne(ctx, bson.M{FieldID: id}).Err()
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("failed to load document: %w", err)
		}
		matched = true
	} else {
		res, err := s.coll.UpdateOne(ctx, bson.M{FieldID: id}, bson.M{"$set": set})
		if err != nil {
			return false, fmt.Errorf("failed to update document: %w", err)
		}
		matched = res.MatchedCount > 0
	}

	if matched {
		s.emit(DocumentUpdatedEvent{ID: id, Fields: fields})
	}
	return matched, nil
}

// FindAll returns every document in natural order.
func (s *MongoStore) FindAll(ctx context.Context) ([]Document, error) {
	return s.find(ctx, bson.M{}, options.Find())
}

// Get returns the document stored at id, or ErrNotFound.
func (s *MongoStore) Get(ctx context.Context, id string) (Document, error) {
	var raw bson.M
	err := s.coll.FindOne(ctx, bson.M{FieldID: id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return fromMongo(raw), nil
}

// Delete removes the document at id and reports whether one existed.
// Emits a DocumentDeletedEvent after a successful deletion.
func (s *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{FieldID: id})
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	s.emit(DocumentDeletedEvent{ID: id})
	return true, nil
}

// ListPendingCapture returns documents without a capture subdocument.
func (s *MongoStore) ListPendingCapture(ctx context.Context, limit int) ([]Document, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{FieldCapture: bson.M{"$exists": false}}, opts)
}

// SaveCaptureResult records the outcome of a capture attempt.
// Emits a CaptureSavedEvent after successful save.
func (s *MongoStore) SaveCaptureResult(ctx context.Context, id string, res CaptureResult) error {
	state := res.state()
	update := bson.M{"$set": bson.M{FieldCapture: state.Fields()}}
	if err := s.updateExisting(ctx, id, update); err != nil {
		return fmt.Errorf("failed to save capture result: %w", err)
	}
	s.emit(CaptureSavedEvent{ID: id, Status: state.Status})
	return nil
}

// ClearCapture removes the capture subdocument so the document is captured again.
// Emits a CaptureClearedEvent after success.
func (s *MongoStore) ClearCapture(ctx context.Context, id string) error {
	update := bson.M{"$unset": bson.M{FieldCapture: ""}}
	if err := s.updateExisting(ctx, id, update); err != nil {
		return fmt.Errorf("failed to clear capture state: %w", err)
	}
	s.emit(CaptureClearedEvent{ID: id})
	return nil
}

// Close disconnects the client when the store owns it.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) updateExisting(ctx context.Context, id string, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{FieldID: id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Document, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	out := make([]Document, 0, len(raws))
	for _, raw := range raws {
		out = append(out, fromMongo(raw))
	}
	return out, nil
}

// fromMongo converts a decoded BSON document into plain maps and slices and
// attaches the capture view.
func fromMongo(raw bson.M) Document {
	doc, _ := plainValue(map[string]any(raw)).(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	if id, ok := NormalizeID(doc[FieldID]); ok {
		doc[FieldID] = id
	}
	doc[FieldCapture] = captureStateFrom(doc[FieldCapture]).Fields()
	return Document(doc)
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return plainValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainValue(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		return plainValue([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainValue(val)
		}
		return out
	default:
		return v
	}
}
