package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/apascal07/mailroom/core/delivery"
	"github.com/apascal07/mailroom/core/dispatch"
	"github.com/apascal07/mailroom/core/mail"
)

// Handler consumes document change events. Invocations for different
// documents run fully parallel; the handler must tolerate duplicate events
// for the same document.
type Handler interface {
	HandleEvent(ctx context.Context, evt dispatch.Event)
}

// ErrHandlerNil is returned when a watcher is created without a handler.
var ErrHandlerNil = errors.New("handler cannot be nil")

// Watcher tails the message collection's change stream and invokes the
// handler once per observed create, update, or delete. Each invocation runs
// in its own goroutine so a slow delivery never blocks the stream.
type Watcher struct {
	coll    *mongodriver.Collection
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex

	// openStream is swappable for tests.
	openStream func(ctx context.Context) (*mongodriver.ChangeStream, error)

	// Configuration
	shutdownTimeout   time.Duration
	invocationTimeout time.Duration

	// State management
	ctx    context.Context
	cancel context.CancelFunc

	// Observability metrics
	eventsSeen atomic.Int64
}

// WatcherStats provides observability metrics for monitoring and debugging.
type WatcherStats struct {
	EventsSeen int64 // Total change events observed on the stream
	IsRunning  bool  // Whether the watcher is currently running
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for stream lifecycle events.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherShutdownTimeout sets the graceful shutdown timeout.
func WithWatcherShutdownTimeout(timeout time.Duration) WatcherOption {
	return func(w *Watcher) {
		if timeout > 0 {
			w.shutdownTimeout = timeout
		}
	}
}

// WithWatcherInvocationTimeout bounds how long a single handler invocation
// may run. Should not be shorter than the delivery lease duration.
func WithWatcherInvocationTimeout(timeout time.Duration) WatcherOption {
	return func(w *Watcher) {
		if timeout > 0 {
			w.invocationTimeout = timeout
		}
	}
}

// NewWatcher creates a change-stream watcher over the message collection.
func NewWatcher(coll *mongodriver.Collection, handler Handler, opts ...WatcherOption) (*Watcher, error) {
	if handler == nil {
		return nil, ErrHandlerNil
	}

	w := &Watcher{
		coll:              coll,
		handler:           handler,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdownTimeout:   30 * time.Second,
		invocationTimeout: delivery.DefaultLeaseDuration,
	}
	w.openStream = func(ctx context.Context) (*mongodriver.ChangeStream, error) {
		streamOpts := options.ChangeStream().
			SetFullDocument(options.UpdateLookup).
			SetFullDocumentBeforeChange(options.WhenAvailable)
		return w.coll.Watch(ctx, mongodriver.Pipeline{}, streamOpts)
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// changeEvent is the subset of the change stream document the watcher needs.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID bson.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             *mail.Document `bson:"fullDocument"`
	FullDocumentBeforeChange *mail.Document `bson:"fullDocumentBeforeChange"`
}

// toEvent maps a change stream document to a dispatch event. The second
// return value is false for operation types the dispatcher has no use for.
func (ce changeEvent) toEvent() (dispatch.Event, bool) {
	switch ce.OperationType {
	case "insert":
		if ce.FullDocument == nil {
			return dispatch.Event{}, false
		}
		return dispatch.Event{After: ce.FullDocument}, true
	case "update", "replace":
		before := ce.FullDocumentBeforeChange
		if before == nil {
			// The pre-image is not always retained, but for an update the
			// document necessarily existed before the change.
			before = &mail.Document{ID: ce.DocumentKey.ID}
		}
		return dispatch.Event{Before: before, After: ce.FullDocument}, true
	case "delete":
		return dispatch.Event{Before: &mail.Document{ID: ce.DocumentKey.ID}}, true
	default:
		return dispatch.Event{}, false
	}
}

// Start begins consuming the change stream. This is a blocking operation
// that runs until the context is cancelled or the stream fails. Use Run()
// for errgroup pattern or call this in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	stream, err := w.openStream(w.ctx)
	if err != nil {
		w.mu.Lock()
		w.cancel()
		w.cancel = nil
		w.mu.Unlock()
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer func() { _ = stream.Close(context.Background()) }()

	w.logger.InfoContext(w.ctx, "watcher started",
		slog.String("collection", w.coll.Name()))

	for stream.Next(w.ctx) {
		var ce changeEvent
		if err := stream.Decode(&ce); err != nil {
			w.logger.ErrorContext(w.ctx, "failed to decode change event",
				slog.String("error", err.Error()))
			continue
		}

		w.eventsSeen.Add(1)

		evt, ok := ce.toEvent()
		if !ok {
			w.logger.DebugContext(w.ctx, "ignoring change event",
				slog.String("operation_type", ce.OperationType))
			continue
		}

		if !w.dispatchEvent(evt) {
			return nil
		}
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("change stream failed: %w", err)
	}
	return w.ctx.Err()
}

// dispatchEvent hands one event to the handler in its own goroutine. It
// returns false when the watcher has been stopped.
func (w *Watcher) dispatchEvent(evt dispatch.Event) bool {
	// Mutex protects against shutdown race: must verify the watcher is
	// still running and add to the waitgroup atomically, otherwise Stop()
	// might wait on an incomplete count.
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return false
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		// Shutdown must not interrupt running invocations: an attempt that
		// has already claimed its document would otherwise abort between the
		// transport call and the completion write, wedging the document in a
		// processing state after the mail went out. The invocation gets its
		// full timeout even during Stop.
		ictx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.invocationTimeout)
		defer cancel()
		w.handler.HandleEvent(ictx, evt)
	}()
	return true
}

// Stop gracefully shuts down the watcher with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher not started")
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.InfoContext(context.Background(), "watcher stopping, waiting for in-flight invocations",
		slog.Duration("timeout", w.shutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(context.Background(), "watcher stopped cleanly")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(context.Background(), "watcher shutdown timeout exceeded",
			slog.Duration("timeout", w.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", w.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the watcher, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (w *Watcher) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats returns current watcher statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	isRunning := w.cancel != nil
	w.mu.Unlock()

	return WatcherStats{
		EventsSeen: w.eventsSeen.Load(),
		IsRunning:  isRunning,
	}
}
