package protocol

const (
	// Request/transport validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Store state.
	ErrBusy        = "E_BUSY"
	ErrNotFound    = "E_NOT_FOUND"
	ErrCorruptSave = "E_CORRUPT_SAVE"
	ErrIO          = "E_IO"

	// Cloud mirror.
	ErrNotReady     = "E_NOT_READY"
	ErrNetwork      = "E_NETWORK"
	ErrRemoteWrite  = "E_REMOTE_WRITE"
	ErrEmptyPayload = "E_EMPTY_PAYLOAD"
	ErrRemoteNewer  = "E_REMOTE_NEWER"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:   {},
	ErrBusy:         {},
	ErrNotFound:     {},
	ErrCorruptSave:  {},
	ErrIO:           {},
	ErrNotReady:     {},
	ErrNetwork:      {},
	ErrRemoteWrite:  {},
	ErrEmptyPayload: {},
	ErrRemoteNewer:  {},
	ErrInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
