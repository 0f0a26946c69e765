package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/config"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateID is returned when inserting an id that already exists.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrMissingID is returned when a document carries no usable _id.
	ErrMissingID = errors.New("missing document id")
)

// Store is the document store the API and capture workers share.
// Implementations emit events after each successful write.
type Store interface {
	Insert(ctx context.Context, doc Document) error
	// Update merges fields into the document at id. It reports whether a
	// document matched; a miss is not an error.
	Update(ctx context.Context, id string, fields Document) (bool, error)
	FindAll(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) (bool, error)

	// ListPendingCapture returns documents that have never been captured.
	// limit <= 0 means no limit.
	ListPendingCapture(ctx context.Context, limit int) ([]Document, error)
	SaveCaptureResult(ctx context.Context, id string, res CaptureResult) error
	ClearCapture(ctx context.Context, id string) error

	RegisterEventListener(kind EventKind, listener EventListener)
	Close(ctx context.Context) error
}

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.Database, cfg.Collection, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
