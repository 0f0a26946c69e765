package db

import (
	"sync"

	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/logging"
)

// ------------------------------
// Event System
// ------------------------------
//
// Stores emit typed events when documents are inserted, updated, deleted,
// or when capture results are saved or cleared. Register listeners to react
// to these changes.
//
// Example usage:
//
//	store.RegisterEventListener(db.OnDocumentInsertedEvent, func(event db.Event) error {
//	    ev := event.(db.DocumentInsertedEvent)
//	    logger.Info("bookmark created", zap.String("id", ev.Document.ID()))
//	    return nil
//	})
//
// Event is the common interface for all store events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by a Store.
type EventKind int

const (
	// OnDocumentInsertedEvent is emitted when a document is inserted.
	OnDocumentInsertedEvent EventKind = iota
	// OnDocumentDeletedEvent is emitted when a document is deleted.
	OnDocumentDeletedEvent
	// OnDocumentUpdatedEvent is emitted when a document is updated.
	OnDocumentUpdatedEvent
	// OnCaptureSavedEvent is emitted when a capture result is saved.
	OnCaptureSavedEvent
	// OnCaptureClearedEvent is emitted when capture state is cleared for re-capture.
	OnCaptureClearedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnDocumentInsertedEvent:
		return "document_inserted"
	case OnDocumentDeletedEvent:
		return "document_deleted"
	case OnDocumentUpdatedEvent:
		return "document_updated"
	case OnCaptureSavedEvent:
		return "capture_saved"
	case OnCaptureClearedEvent:
		return "capture_cleared"
	default:
		return "unknown"
	}
}

// DocumentInsertedEvent is emitted after a new document is successfully inserted.
type DocumentInsertedEvent struct {
	Document Document
}

func (e DocumentInsertedEvent) Kind() EventKind { return OnDocumentInsertedEvent }

// DocumentUpdatedEvent is emitted after fields are merged into a document.
type DocumentUpdatedEvent struct {
	ID     string
	Fields Document
}

func (e DocumentUpdatedEvent) Kind() EventKind { return OnDocumentUpdatedEvent }

// DocumentDeletedEvent is emitted after a document is deleted.
type DocumentDeletedEvent struct {
	ID string
}

func (e DocumentDeletedEvent) Kind() EventKind { return OnDocumentDeletedEvent }

// CaptureSavedEvent is emitted after a capture result is saved.
type CaptureSavedEvent struct {
	ID     string
	Status string // "ok" or "error"
}

func (e CaptureSavedEvent) Kind() EventKind { return OnCaptureSavedEvent }

// CaptureClearedEvent is emitted after capture state is cleared for re-capture.
type CaptureClearedEvent struct {
	ID string
}

func (e CaptureClearedEvent) Kind() EventKind { return OnCaptureClearedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// emitter is embedded by every Store implementation.
type emitter struct {
	mu        sync.RWMutex
	listeners map[EventKind][]EventListener
	logger    *zap.Logger
}

func newEmitter(logger *zap.Logger) *emitter {
	return &emitter{
		listeners: make(map[EventKind][]EventListener),
		logger:    logging.OrNop(logger),
	}
}

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the store operation succeeds.
func (e *emitter) RegisterEventListener(eventKind EventKind, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[eventKind] = append(e.listeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (e *emitter) emit(event Event) {
	e.mu.RLock()
	listeners := append([]EventListener(nil), e.listeners[event.Kind()]...)
	e.mu.RUnlock()

	for _, listener := range listeners {
		if err := listener(event); err != nil {
			e.logger.Warn("event listener failed",
				zap.Stringer("event", event.Kind()),
				zap.Error(err),
			)
		}
	}
}
