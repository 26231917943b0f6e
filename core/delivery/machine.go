package delivery

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// StateMachine owns every mutation of the delivery sub-record. Each method
// maps to one edge of the lifecycle and is applied as a single atomic
// transition through the Store.
type StateMachine struct {
	store  Store
	lease  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// StateMachineOption configures a StateMachine.
type StateMachineOption func(*StateMachine)

// WithLeaseDuration sets how long a PROCESSING claim stays valid.
func WithLeaseDuration(d time.Duration) StateMachineOption {
	return func(m *StateMachine) {
		if d > 0 {
			m.lease = d
		}
	}
}

// WithMachineLogger sets the logger for transition events.
func WithMachineLogger(logger *slog.Logger) StateMachineOption {
	return func(m *StateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) StateMachineOption {
	return func(m *StateMachine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewStateMachine creates a state machine over the given store.
func NewStateMachine(store Store, opts ...StateMachineOption) (*StateMachine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	m := &StateMachine{
		store:  store,
		lease:  DefaultLeaseDuration,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// LeaseDuration returns the configured lease window.
func (m *StateMachine) LeaseDuration() time.Duration {
	return m.lease
}

// Initialize claims a newly created document for this system by writing the
// initial PENDING record. Returns ErrAlreadyInitialized when a delivery
// record already exists, which happens when the creation event is delivered
// more than once.
func (m *StateMachine) Initialize(ctx context.Context, id bson.ObjectID) error {
	start := m.now()

	_, err := m.store.Transition(ctx, id, func(current *Delivery) (*Delivery, error) {
		if current != nil {
			return nil, ErrAlreadyInitialized
		}
		return &Delivery{
			State:     StatePending,
			StartTime: start,
			Attempts:  0,
			Error:     nil,
		}, nil
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "delivery initialized",
		slog.String("document_id", id.Hex()),
		slog.String("state", string(StatePending)))
	return nil
}

// Claim transitions a PENDING or RETRY record into PROCESSING under a fresh
// lease. Returns ErrNotClaimable when the record was observed in any other
// state, which means another in-flight invocation owns the attempt.
func (m *StateMachine) Claim(ctx context.Context, id bson.ObjectID) error {
	claimedAt := m.now()
	expire := claimedAt.Add(m.lease)

	_, err := m.store.Transition(ctx, id, func(current *Delivery) (*Delivery, error) {
		if current == nil {
			return nil, ErrNotClaimable
		}
		switch current.State {
		case StatePending, StateRetry:
		default:
			return nil, ErrNotClaimable
		}

		next := *current
		next.State = StateProcessing
		next.LeaseExpireTime = &expire
		return &next, nil
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "delivery claimed",
		slog.String("document_id", id.Hex()),
		slog.Time("lease_expire_time", expire))
	return nil
}

// ExpireLease marks a PROCESSING record whose lease already elapsed as ERROR
// so an operator can retry it. Returns ErrNotProcessing when the record left
// PROCESSING in the meantime and ErrLeaseStillValid when the claim is still
// owned by a live attempt.
func (m *StateMachine) ExpireLease(ctx context.Context, id bson.ObjectID) error {
	observedAt := m.now()

	_, err := m.store.Transition(ctx, id, func(current *Delivery) (*Delivery, error) {
		if current == nil || current.State != StateProcessing {
			return nil, ErrNotProcessing
		}
		if !current.LeaseExpired(observedAt) {
			return nil, ErrLeaseStillValid
		}

		msg := leaseExpiredMessage
		next := *current
		next.State = StateError
		next.Error = &msg
		next.LeaseExpireTime = nil
		return &next, nil
	})
	if err != nil {
		return err
	}

	m.logger.WarnContext(ctx, "delivery lease expired",
		slog.String("document_id", id.Hex()))
	return nil
}

// Complete finishes the current attempt with a successful transport outcome.
func (m *StateMachine) Complete(ctx context.Context, id bson.ObjectID, info *Info) error {
	d, err := m.finishAttempt(ctx, id, func(next *Delivery) {
		next.State = StateSuccess
		next.Info = info
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "delivery completed",
		slog.String("document_id", id.Hex()),
		slog.Int("attempts", d.Attempts))
	return nil
}

// Fail finishes the current attempt with the error that aborted it.
func (m *StateMachine) Fail(ctx context.Context, id bson.ObjectID, cause error) error {
	msg := cause.Error()
	d, err := m.finishAttempt(ctx, id, func(next *Delivery) {
		next.State = StateError
		next.Error = &msg
	})
	if err != nil {
		return err
	}

	m.logger.ErrorContext(ctx, "delivery failed",
		slog.String("document_id", id.Hex()),
		slog.Int("attempts", d.Attempts),
		slog.String("error", msg))
	return nil
}

// finishAttempt applies the bookkeeping shared by Complete and Fail: the
// attempt counter increments exactly once, the lease is released, and the
// previous error is cleared before decorate sets the terminal outcome.
func (m *StateMachine) finishAttempt(ctx context.Context, id bson.ObjectID, decorate func(*Delivery)) (*Delivery, error) {
	end := m.now()

	return m.store.Transition(ctx, id, func(current *Delivery) (*Delivery, error) {
		if current == nil || current.State != StateProcessing {
			return nil, ErrNotProcessing
		}

		next := *current
		next.Attempts++
		next.EndTime = &end
		next.LeaseExpireTime = nil
		next.Error = nil
		decorate(&next)
		return &next, nil
	})
}
