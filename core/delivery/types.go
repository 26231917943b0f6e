package delivery

import (
	"time"
)

// DefaultLeaseDuration bounds how long a PROCESSING claim is considered valid.
const DefaultLeaseDuration = 60 * time.Second

// State tracks the lifecycle of a delivery record. A document without a
// delivery sub-record has not yet been claimed by this system.
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateRetry      State = "RETRY"
	StateSuccess    State = "SUCCESS"
	StateError      State = "ERROR"
)

// Valid reports whether the state is one of the known lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateRetry, StateSuccess, StateError:
		return true
	}
	return false
}

// Terminal reports whether the state permits no further automatic transition.
// Re-entry from a terminal state requires an external actor to rewrite the
// state to RETRY.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// Delivery is the mutable status sub-record embedded in each message document.
// The Error field is persisted even when nil so that each attempt visibly
// clears the previous failure.
type Delivery struct {
	State           State      `bson:"state" json:"state"`
	StartTime       time.Time  `bson:"startTime" json:"startTime"`
	EndTime         *time.Time `bson:"endTime,omitempty" json:"endTime,omitempty"`
	Attempts        int        `bson:"attempts" json:"attempts"`
	Error           *string    `bson:"error" json:"error"`
	LeaseExpireTime *time.Time `bson:"leaseExpireTime,omitempty" json:"leaseExpireTime,omitempty"`
	Info            *Info      `bson:"info,omitempty" json:"info,omitempty"`
}

// LeaseExpired reports whether the record holds a lease that elapsed before now.
func (d *Delivery) LeaseExpired(now time.Time) bool {
	return d.LeaseExpireTime != nil && d.LeaseExpireTime.Before(now)
}

// Info records the outcome of a successful delivery attempt as reported by
// the mail transport.
type Info struct {
	MessageID string   `bson:"messageId" json:"messageId"`
	Accepted  []string `bson:"accepted" json:"accepted"`
	Rejected  []string `bson:"rejected" json:"rejected"`
	Pending   []string `bson:"pending" json:"pending"`
	Response  string   `bson:"response" json:"response"`
}
