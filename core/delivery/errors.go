package delivery

import "errors"

// Error variables cover transition outcomes. Callers are expected to treat
// the skip errors (ErrAlreadyInitialized, ErrNotClaimable, ErrNotProcessing,
// ErrLeaseStillValid) as benign: another invocation already owns the record.
var (
	ErrStoreNil           = errors.New("store cannot be nil")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrAlreadyInitialized = errors.New("delivery already initialized")
	ErrNotClaimable       = errors.New("delivery is not claimable")
	ErrNotProcessing      = errors.New("delivery is not processing")
	ErrLeaseStillValid    = errors.New("delivery lease is still valid")
)

// leaseExpiredMessage is the error description recorded on the document when
// a stale claim is detected. Operators searching for recoverable records key
// off this exact string.
const leaseExpiredMessage = "lease expired"
