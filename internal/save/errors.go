package save

import "errors"

// Shared sentinels for the local slot store and the cloud mirror. Callers
// classify failures with errors.Is; storage packages wrap these with context.
var (
	ErrBusy         = errors.New("operation already in flight")
	ErrNotFound     = errors.New("slot has no save document")
	ErrCorrupt      = errors.New("save document corrupt")
	ErrNotReady     = errors.New("cloud mirror not ready")
	ErrEmptyPayload = errors.New("remote document has no payload")
	ErrRemoteNewer  = errors.New("remote document is newer")
	ErrSealed       = errors.New("registration closed")
)
