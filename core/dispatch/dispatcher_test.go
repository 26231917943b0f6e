package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/apascal07/mailroom/core/delivery"
	"github.com/apascal07/mailroom/core/dispatch"
	"github.com/apascal07/mailroom/core/mail"
)

// MockTransport is a mock implementation of mail.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, payload *mail.Payload) (*mail.SendResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mail.SendResult), args.Error(1)
}

type testHarness struct {
	store      *delivery.MemoryStore
	machine    *delivery.StateMachine
	transport  *MockTransport
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, opts ...dispatch.DispatcherOption) *testHarness {
	t.Helper()

	store := delivery.NewMemoryStore()
	machine, err := delivery.NewStateMachine(store)
	require.NoError(t, err)

	preparer, err := mail.NewPreparer(mail.NewResolver())
	require.NoError(t, err)

	transport := new(MockTransport)
	dispatcher, err := dispatch.NewDispatcher(machine, preparer, transport, opts...)
	require.NoError(t, err)

	return &testHarness{
		store:      store,
		machine:    machine,
		transport:  transport,
		dispatcher: dispatcher,
	}
}

// snapshot builds an After document reflecting the store's current record.
func (h *testHarness) snapshot(id bson.ObjectID, msg mail.Message) *mail.Document {
	record, _ := h.store.Get(id)
	return &mail.Document{ID: id, Message: msg, Delivery: record}
}

func TestNewDispatcher(t *testing.T) {
	t.Parallel()

	machine, err := delivery.NewStateMachine(delivery.NewMemoryStore())
	require.NoError(t, err)
	preparer, err := mail.NewPreparer(mail.NewResolver())
	require.NoError(t, err)

	t.Run("nil collaborators", func(t *testing.T) {
		t.Parallel()

		_, err := dispatch.NewDispatcher(nil, preparer, new(MockTransport))
		assert.ErrorIs(t, err, dispatch.ErrMachineNil)

		_, err = dispatch.NewDispatcher(machine, nil, new(MockTransport))
		assert.ErrorIs(t, err, dispatch.ErrPreparerNil)

		_, err = dispatch.NewDispatcher(machine, preparer, nil)
		assert.ErrorIs(t, err, dispatch.ErrTransportNil)
	})

	t.Run("from config", func(t *testing.T) {
		t.Parallel()

		d, err := dispatch.NewDispatcherFromConfig(
			dispatch.Config{DefaultFrom: "noreply@x.com"},
			machine, preparer, new(MockTransport),
		)
		require.NoError(t, err)
		require.NotNil(t, d)
	})
}

func TestDispatcher_Creation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	id := bson.NewObjectID()
	h.store.CreateDocument(id)
	msg := mail.Message{To: "a@x.com", Subject: "s", Text: "t"}

	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		After: &mail.Document{ID: id, Message: msg},
	})

	record, ok := h.store.Get(id)
	require.True(t, ok)
	require.NotNil(t, record)
	assert.Equal(t, delivery.StatePending, record.State)
	assert.Equal(t, 0, record.Attempts)
	assert.Nil(t, record.Error)
	assert.False(t, record.StartTime.IsZero())

	// The transport is only invoked by the follow-up update event.
	h.transport.AssertNotCalled(t, "Send")
}

func TestDispatcher_EndToEndSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	h.transport.On("Send", mock.Anything, mock.MatchedBy(func(p *mail.Payload) bool {
		return len(p.To) == 1 && p.To[0] == "a@x.com"
	})).Return(&mail.SendResult{
		MessageID: "m1",
		Accepted:  []string{"a@x.com"},
		Response:  "250 queued",
	}, nil).Once()

	id := bson.NewObjectID()
	h.store.CreateDocument(id)
	msg := mail.Message{To: "a@x.com", Subject: "s", Text: "t"}

	// Creation, then the PENDING update it causes.
	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		After: &mail.Document{ID: id, Message: msg},
	})
	before := h.snapshot(id, msg)
	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		Before: before,
		After:  h.snapshot(id, msg),
	})

	record, _ := h.store.Get(id)
	require.NotNil(t, record)
	assert.Equal(t, delivery.StateSuccess, record.State)
	assert.Equal(t, 1, record.Attempts)
	assert.Nil(t, record.Error)
	assert.Nil(t, record.LeaseExpireTime)
	require.NotNil(t, record.EndTime)
	require.NotNil(t, record.Info)
	assert.Equal(t, "m1", record.Info.MessageID)
	assert.Equal(t, []string{"a@x.com"}, record.Info.Accepted)

	stats := h.dispatcher.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
}

func TestDispatcher_NoRecipients(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	id := bson.NewObjectID()
	h.store.Seed(id, &delivery.Delivery{State: delivery.StatePending, StartTime: time.Now()})
	msg := mail.Message{Subject: "s", Text: "t"}

	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		Before: h.snapshot(id, msg),
		After:  h.snapshot(id, msg),
	})

	record, _ := h.store.Get(id)
	assert.Equal(t, delivery.StateError, record.State)
	assert.Equal(t, 1, record.Attempts)
	require.NotNil(t, record.Error)
	assert.Contains(t, *record.Error, "at least 1 recipient")
	h.transport.AssertNotCalled(t, "Send")
}

func TestDispatcher_TransportFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	h.transport.On("Send", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	id := bson.NewObjectID()
	h.store.Seed(id, &delivery.Delivery{State: delivery.StatePending, StartTime: time.Now()})
	msg := mail.Message{To: "a@x.com", Subject: "s", Text: "t"}

	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		Before: h.snapshot(id, msg),
		After:  h.snapshot(id, msg),
	})

	record, _ := h.store.Get(id)
	assert.Equal(t, delivery.StateError, record.State)
	assert.Equal(t, 1, record.Attempts)
	require.NotNil(t, record.Error)
	assert.Contains(t, *record.Error, "connection refused")
	assert.Nil(t, record.Info)
}

func TestDispatcher_RetryReentry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	h.transport.On("Send", mock.Anything, mock.Anything).
		Return(&mail.SendResult{MessageID: "m2", Accepted: []string{"a@x.com"}}, nil).Once()

	// An operator rewrote a failed record to RETRY.
	prev := "connection refused"
	id := bson.NewObjectID()
	h.store.Seed(id, &delivery.Delivery{
		State:     delivery.StateRetry,
		StartTime: time.Now(),
		Attempts:  1,
		Error:     &prev,
	})
	msg := mail.Message{To: "a@x.com", Subject: "s", Text: "t"}

	h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
		Before: h.snapshot(id, msg),
		After:  h.snapshot(id, msg),
	})

	record, _ := h.store.Get(id)
	assert.Equal(t, delivery.StateSuccess, record.State)
	assert.Equal(t, 2, record.Attempts)
	assert.Nil(t, record.Error)
}

func TestDispatcher_TerminalStatesAreIdempotent(t *testing.T) {
	t.Parallel()

	for _, state := range []delivery.State{delivery.StateSuccess, delivery.StateError} {
		t.Run(string(state), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			defer h.transport.AssertExpectations(t)

			id := bson.NewObjectID()
			h.store.Seed(id, &delivery.Delivery{State: state, StartTime: time.Now(), Attempts: 1})
			msg := mail.Message{To: "a@x.com"}
			transitionsBefore := h.store.Stats().TransitionsApplied

			h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
				Before: h.snapshot(id, msg),
				After:  h.snapshot(id, msg),
			})

			record, _ := h.store.Get(id)
			assert.Equal(t, state, record.State)
			assert.Equal(t, transitionsBefore, h.store.Stats().TransitionsApplied)
			h.transport.AssertNotCalled(t, "Send")
		})
	}
}

func TestDispatcher_Processing(t *testing.T) {
	t.Parallel()

	t.Run("valid lease is left to its owner", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		defer h.transport.AssertExpectations(t)

		lease := time.Now().Add(time.Minute)
		id := bson.NewObjectID()
		h.store.Seed(id, &delivery.Delivery{
			State:           delivery.StateProcessing,
			StartTime:       time.Now(),
			LeaseExpireTime: &lease,
		})
		msg := mail.Message{To: "a@x.com"}

		h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
			Before: h.snapshot(id, msg),
			After:  h.snapshot(id, msg),
		})

		record, _ := h.store.Get(id)
		assert.Equal(t, delivery.StateProcessing, record.State)
		h.transport.AssertNotCalled(t, "Send")
	})

	t.Run("expired lease becomes error without a transport call", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		defer h.transport.AssertExpectations(t)

		stale := time.Now().Add(-time.Minute)
		id := bson.NewObjectID()
		h.store.Seed(id, &delivery.Delivery{
			State:           delivery.StateProcessing,
			StartTime:       time.Now().Add(-2 * time.Minute),
			LeaseExpireTime: &stale,
		})
		msg := mail.Message{To: "a@x.com"}

		h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
			Before: h.snapshot(id, msg),
			After:  h.snapshot(id, msg),
		})

		record, _ := h.store.Get(id)
		assert.Equal(t, delivery.StateError, record.State)
		require.NotNil(t, record.Error)
		assert.Equal(t, "lease expired", *record.Error)
		h.transport.AssertNotCalled(t, "Send")
	})
}

func TestDispatcher_IgnoredEvents(t *testing.T) {
	t.Parallel()

	t.Run("deletion", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		defer h.transport.AssertExpectations(t)

		h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
			Before: &mail.Document{ID: bson.NewObjectID()},
		})
		assert.Equal(t, int64(1), h.dispatcher.Stats().Skipped)
	})

	t.Run("update without delivery record", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		defer h.transport.AssertExpectations(t)

		id := bson.NewObjectID()
		h.store.CreateDocument(id)
		doc := &mail.Document{ID: id, Message: mail.Message{To: "a@x.com"}}

		h.dispatcher.HandleEvent(context.Background(), dispatch.Event{Before: doc, After: doc})

		record, ok := h.store.Get(id)
		assert.True(t, ok)
		assert.Nil(t, record)
		h.transport.AssertNotCalled(t, "Send")
	})

	t.Run("unknown state", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		defer h.transport.AssertExpectations(t)

		id := bson.NewObjectID()
		h.store.Seed(id, &delivery.Delivery{State: delivery.State("QUEUED"), StartTime: time.Now()})
		msg := mail.Message{To: "a@x.com"}

		h.dispatcher.HandleEvent(context.Background(), dispatch.Event{
			Before: h.snapshot(id, msg),
			After:  h.snapshot(id, msg),
		})

		record, _ := h.store.Get(id)
		assert.Equal(t, delivery.State("QUEUED"), record.State)
		h.transport.AssertNotCalled(t, "Send")
	})
}

func TestDispatcher_ConcurrentNotifications(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defer h.transport.AssertExpectations(t)

	// Exactly one of the duplicate invocations may reach the transport.
	h.transport.On("Send", mock.Anything, mock.Anything).
		Return(&mail.SendResult{MessageID: "m3", Accepted: []string{"a@x.com"}}, nil).Once()

	id := bson.NewObjectID()
	h.store.Seed(id, &delivery.Delivery{State: delivery.StatePending, StartTime: time.Now()})
	msg := mail.Message{To: "a@x.com", Subject: "s", Text: "t"}
	evt := dispatch.Event{Before: h.snapshot(id, msg), After: h.snapshot(id, msg)}

	const invocations = 8
	var wg sync.WaitGroup
	for range invocations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.dispatcher.HandleEvent(context.Background(), evt)
		}()
	}
	wg.Wait()

	record, _ := h.store.Get(id)
	assert.Equal(t, delivery.StateSuccess, record.State)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, int64(1), h.dispatcher.Stats().Delivered)
}

func TestDispatcher_DefaultSenderFields(t *testing.T) {
	t.Parallel()

	store := delivery.NewMemoryStore()
	machine, err := delivery.NewStateMachine(store)
	require.NoError(t, err)
	preparer, err := mail.NewPreparer(mail.NewResolver())
	require.NoError(t, err)

	transport := new(MockTransport)
	defer transport.AssertExpectations(t)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(p *mail.Payload) bool {
		return p.Message.From == "noreply@x.com" && p.Message.ReplyTo == "support@x.com"
	})).Return(&mail.SendResult{MessageID: "m4", Accepted: []string{"a@x.com"}}, nil).Once()

	dispatcher, err := dispatch.NewDispatcher(machine, preparer, transport,
		dispatch.WithDefaultFrom("noreply@x.com"),
		dispatch.WithDefaultReplyTo("support@x.com"),
	)
	require.NoError(t, err)

	id := bson.NewObjectID()
	store.Seed(id, &delivery.Delivery{State: delivery.StatePending, StartTime: time.Now()})
	record, _ := store.Get(id)
	doc := &mail.Document{ID: id, Message: mail.Message{To: "a@x.com"}, Delivery: record}

	dispatcher.HandleEvent(context.Background(), dispatch.Event{Before: doc, After: doc})

	final, _ := store.Get(id)
	assert.Equal(t, delivery.StateSuccess, final.State)
}
