// Package dispatch orchestrates delivery processing. It is the entry point
// for document change notifications: one HandleEvent call per observed
// create, update, or delete of a message document.
//
// Creations initialize the delivery record and stop; the write of the
// initial PENDING state is itself a change that re-triggers processing.
// Updates are dispatched on the observed delivery state: terminal records
// are ignored, stale PROCESSING claims are expired, and PENDING/RETRY
// records are claimed, prepared, and handed to the mail transport, with the
// outcome written back as the terminal SUCCESS or ERROR state.
//
// HandleEvent never reports failure to its caller. Every error is recorded
// on the document itself (or logged, for records that cannot be fixed), so
// the notification layer never sees a failure and never retries on its own.
// Retrying a failed delivery is an explicit external act of rewriting the
// delivery state to RETRY.
package dispatch
