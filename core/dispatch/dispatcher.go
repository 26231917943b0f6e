package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/apascal07/mailroom/core/delivery"
	"github.com/apascal07/mailroom/core/mail"
)

// Dispatcher reacts to message document changes and drives each document
// through the delivery lifecycle. A single Dispatcher is shared by all
// in-flight invocations; it holds no per-document state.
type Dispatcher struct {
	machine   *delivery.StateMachine
	preparer  *mail.Preparer
	transport mail.Transport
	logger    *slog.Logger
	now       func() time.Time

	defaultFrom    string
	defaultReplyTo string

	// Observability metrics
	delivered atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// DispatcherStats provides observability metrics for monitoring and debugging.
type DispatcherStats struct {
	Delivered int64 // Total attempts that ended in SUCCESS
	Failed    int64 // Total attempts that ended in ERROR (including lease expiries)
	Skipped   int64 // Events that caused no transition
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for invocation events.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDefaultFrom sets the sender address used when a message has none.
func WithDefaultFrom(from string) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultFrom = from
	}
}

// WithDefaultReplyTo sets the reply-to address used when a message has none.
func WithDefaultReplyTo(replyTo string) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultReplyTo = replyTo
	}
}

// WithNow overrides the time source. Intended for tests.
func WithNow(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Config holds dispatcher settings.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	DefaultFrom    string `env:"MAIL_DEFAULT_FROM"`
	DefaultReplyTo string `env:"MAIL_DEFAULT_REPLY_TO"`
}

// Error variables for dispatcher construction.
var (
	ErrMachineNil   = errors.New("state machine cannot be nil")
	ErrPreparerNil  = errors.New("preparer cannot be nil")
	ErrTransportNil = errors.New("transport cannot be nil")
)

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(machine *delivery.StateMachine, preparer *mail.Preparer, transport mail.Transport, opts ...DispatcherOption) (*Dispatcher, error) {
	if machine == nil {
		return nil, ErrMachineNil
	}
	if preparer == nil {
		return nil, ErrPreparerNil
	}
	if transport == nil {
		return nil, ErrTransportNil
	}

	d := &Dispatcher{
		machine:   machine,
		preparer:  preparer,
		transport: transport,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// NewDispatcherFromConfig creates a Dispatcher from configuration.
// Collaborators must be provided. Additional options can override config values.
func NewDispatcherFromConfig(cfg Config, machine *delivery.StateMachine, preparer *mail.Preparer, transport mail.Transport, opts ...DispatcherOption) (*Dispatcher, error) {
	allOpts := append([]DispatcherOption{
		WithDefaultFrom(cfg.DefaultFrom),
		WithDefaultReplyTo(cfg.DefaultReplyTo),
	}, opts...)

	return NewDispatcher(machine, preparer, transport, allOpts...)
}

// HandleEvent processes one change notification. It never returns an error:
// failures are recorded on the document or logged, so the notification layer
// never interprets an invocation as retryable.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt Event) {
	invocationID := uuid.NewString()
	log := d.logger.With(slog.String("invocation_id", invocationID))

	log.DebugContext(ctx, "invocation started")
	defer log.DebugContext(ctx, "invocation complete")

	if evt.Deleted() {
		d.skipped.Add(1)
		return
	}

	id := evt.After.ID
	log = log.With(slog.String("document_id", id.Hex()))

	if evt.Created() {
		d.initialize(ctx, log, id)
		return
	}

	record := evt.After.Delivery
	if record == nil {
		// Cannot be repaired without knowing the intended state.
		d.skipped.Add(1)
		log.WarnContext(ctx, "document updated without a delivery record, ignoring")
		return
	}

	switch record.State {
	case delivery.StateSuccess, delivery.StateError:
		d.skipped.Add(1)
	case delivery.StateProcessing:
		d.handleProcessing(ctx, log, id, record)
	case delivery.StatePending, delivery.StateRetry:
		d.attempt(ctx, log, id, evt.After.Message)
	default:
		d.skipped.Add(1)
		log.WarnContext(ctx, "document has an unknown delivery state, ignoring",
			slog.String("state", string(record.State)))
	}
}

// Stats returns current dispatcher statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Skipped:   d.skipped.Load(),
	}
}

func (d *Dispatcher) initialize(ctx context.Context, log *slog.Logger, id bson.ObjectID) {
	err := d.machine.Initialize(ctx, id)
	switch {
	case err == nil:
		// The PENDING write re-triggers processing as an update event.
	case errors.Is(err, delivery.ErrAlreadyInitialized),
		errors.Is(err, delivery.ErrDocumentNotFound):
		d.skipped.Add(1)
		log.DebugContext(ctx, "creation event skipped", slog.String("reason", err.Error()))
	default:
		d.skipped.Add(1)
		log.ErrorContext(ctx, "failed to initialize delivery", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) handleProcessing(ctx context.Context, log *slog.Logger, id bson.ObjectID, record *delivery.Delivery) {
	if !record.LeaseExpired(d.now()) {
		// Another in-flight attempt owns the claim.
		d.skipped.Add(1)
		return
	}

	err := d.machine.ExpireLease(ctx, id)
	switch {
	case err == nil:
		d.failed.Add(1)
	case errors.Is(err, delivery.ErrNotProcessing),
		errors.Is(err, delivery.ErrLeaseStillValid),
		errors.Is(err, delivery.ErrDocumentNotFound):
		d.skipped.Add(1)
	default:
		d.skipped.Add(1)
		log.ErrorContext(ctx, "failed to expire delivery lease", slog.String("error", err.Error()))
	}
}

// attempt claims the record and, outside that transaction, prepares the
// payload and invokes the transport. The claim commit before the transport
// call and the completion commit after it are what make the lease meaningful.
func (d *Dispatcher) attempt(ctx context.Context, log *slog.Logger, id bson.ObjectID, msg mail.Message) {
	err := d.machine.Claim(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, delivery.ErrNotClaimable), errors.Is(err, delivery.ErrDocumentNotFound):
		d.skipped.Add(1)
		log.DebugContext(ctx, "claim skipped", slog.String("reason", err.Error()))
		return
	default:
		d.skipped.Add(1)
		log.ErrorContext(ctx, "failed to claim delivery", slog.String("error", err.Error()))
		return
	}

	log.InfoContext(ctx, "attempting delivery")

	result, sendErr := d.deliver(ctx, msg)
	if sendErr != nil {
		d.failed.Add(1)
		log.ErrorContext(ctx, "delivery error", slog.String("error", sendErr.Error()))
		if err := d.machine.Fail(ctx, id, sendErr); err != nil {
			log.ErrorContext(ctx, "failed to record delivery error", slog.String("error", err.Error()))
		}
		return
	}

	d.delivered.Add(1)
	log.InfoContext(ctx, "delivered",
		slog.String("message_id", result.MessageID),
		slog.Int("accepted", len(result.Accepted)),
		slog.Int("rejected", len(result.Rejected)))

	if err := d.machine.Complete(ctx, id, infoFromResult(result)); err != nil {
		log.ErrorContext(ctx, "failed to record delivery success", slog.String("error", err.Error()))
	}
}

// deliver prepares and sends one message.
func (d *Dispatcher) deliver(ctx context.Context, msg mail.Message) (*mail.SendResult, error) {
	if msg.From == "" {
		msg.From = d.defaultFrom
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = d.defaultReplyTo
	}

	payload, err := d.preparer.Prepare(ctx, msg)
	if err != nil {
		return nil, err
	}

	return d.transport.Send(ctx, payload)
}

func infoFromResult(result *mail.SendResult) *delivery.Info {
	return &delivery.Info{
		MessageID: result.MessageID,
		Accepted:  result.Accepted,
		Rejected:  result.Rejected,
		Pending:   result.Pending,
		Response:  result.Response,
	}
}
