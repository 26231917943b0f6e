// Package delivery implements the mail delivery state machine.
//
// Every message document carries a delivery sub-record that is exclusively
// owned by this package. The record moves through a fixed lifecycle:
//
//	UNCLAIMED -> PENDING -> PROCESSING -> SUCCESS | ERROR
//
// with RETRY -> PROCESSING as an externally triggered re-entry edge for
// operator-driven retries. PROCESSING is guarded by a time-bounded lease so
// that concurrent invocations for the same document (the change-notification
// layer delivers at least once, not exactly once) cannot both dispatch mail:
// the first claim wins, later invocations observe PROCESSING and skip, and a
// claim abandoned by a crashed attempt is eventually surfaced as ERROR once
// its lease elapses.
//
// All transitions are applied through the Store interface as single atomic
// read-modify-write operations. Conflicting concurrent writers are retried by
// the store, not by this package.
//
// Basic usage:
//
//	store := delivery.NewMemoryStore()
//	machine := delivery.NewStateMachine(store,
//		delivery.WithLeaseDuration(60*time.Second),
//		delivery.WithMachineLogger(slog.Default()),
//	)
//
//	// On document creation:
//	err := machine.Initialize(ctx, docID)
//
//	// On document update observed in PENDING or RETRY:
//	if err := machine.Claim(ctx, docID); err == nil {
//		// ...attempt the send outside the transaction...
//		err = machine.Complete(ctx, docID, info) // or machine.Fail(ctx, docID, sendErr)
//	}
package delivery
