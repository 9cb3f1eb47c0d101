package protocol

import "encoding/json"

const Version = "1.0"

// Signal types published on the event feed.
const (
	SignalSaveStarted    = "SAVE_STARTED"
	SignalSaveCompleted  = "SAVE_COMPLETED"
	SignalSaveFailed     = "SAVE_FAILED"
	SignalLoadStarted    = "LOAD_STARTED"
	SignalLoadCompleted  = "LOAD_COMPLETED"
	SignalLoadFailed     = "LOAD_FAILED"
	SignalSaveDeleted    = "SAVE_DELETED"
	SignalUploadStarted  = "CLOUD_UPLOAD_STARTED"
	SignalUploadDone     = "CLOUD_UPLOAD_COMPLETED"
	SignalUploadFailed   = "CLOUD_UPLOAD_FAILED"
	SignalDownloadDone   = "CLOUD_DOWNLOAD_COMPLETED"
	SignalDownloadFailed = "CLOUD_DOWNLOAD_FAILED"
)

// SignalMsg is one lifecycle event on the /v1/events feed. UI layers key off
// Type and Slot; Code is set only on *_FAILED signals.
type SignalMsg struct {
	Type     string `json:"type"`
	Slot     int    `json:"slot"`
	Autosave bool   `json:"autosave,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	At       string `json:"at"`
}

// OpLogEntry is one row in the operation journal.
type OpLogEntry struct {
	At      string `json:"at"`
	Op      string `json:"op"`
	Slot    int    `json:"slot"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SlotInfo is the listing row for a local slot.
type SlotInfo struct {
	Slot     int     `json:"slot"`
	SavedAt  string  `json:"saved_at"`
	Location string  `json:"location"`
	PlayTime float64 `json:"play_time_seconds"`
}

// RemoteSlotInfo is the listing row for a cloud slot.
type RemoteSlotInfo struct {
	Slot     int     `json:"slot"`
	SavedAt  string  `json:"saved_at"`
	Location string  `json:"location"`
	PlayTime float64 `json:"play_time_seconds"`
	Revision string  `json:"revision"`
}

// ErrorBody is the JSON error envelope for HTTP responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func EncodeError(code, msg string) []byte {
	b, _ := json.Marshal(ErrorBody{Code: code, Message: msg})
	return b
}
