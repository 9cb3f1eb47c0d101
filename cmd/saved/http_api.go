package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"fracturedechoes.app/internal/ledger"
	"fracturedechoes.app/internal/persistence/cloudsave"
	"fracturedechoes.app/internal/protocol"
	"fracturedechoes.app/internal/session"
)

type api struct {
	sess   *session.Session
	ledger *ledger.Ledger
	logger *log.Logger

	upgrader websocket.Upgrader
}

func newAPI(sess *session.Session, led *ledger.Ledger, logger *log.Logger) *api {
	return &api{
		sess:   sess,
		ledger: led,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": protocol.Version,
		})
	})

	mux.HandleFunc("GET /v1/slots", a.handleListSlots)
	mux.HandleFunc("GET /v1/slots/{slot}", a.handleSlotMetadata)
	mux.HandleFunc("POST /v1/slots/{slot}/save", a.handleSave)
	mux.HandleFunc("POST /v1/slots/{slot}/load", a.handleLoad)
	mux.HandleFunc("DELETE /v1/slots/{slot}", a.handleDelete)

	mux.HandleFunc("GET /v1/cloud", a.handleCloudList)
	mux.HandleFunc("GET /v1/cloud/stats", a.handleCloudStats)
	mux.HandleFunc("POST /v1/cloud/{slot}/upload", a.handleCloudUpload)
	mux.HandleFunc("POST /v1/cloud/{slot}/download", a.handleCloudDownload)
	mux.HandleFunc("DELETE /v1/cloud/{slot}", a.handleCloudDelete)

	mux.HandleFunc("GET /v1/ledger", a.handleLedgerList)
	mux.HandleFunc("GET /v1/ledger/{event}", a.handleLedgerQuery)
	mux.HandleFunc("POST /v1/ledger/{event}", a.handleLedgerMark)

	mux.HandleFunc("PUT /v1/location", a.handleSetLocation)

	mux.HandleFunc("GET /v1/events", a.handleEvents)

	return mux
}

func (a *api) slotParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slot < 0 {
		writeErr(w, http.StatusBadRequest, protocol.ErrBadRequest, "invalid slot index")
		return 0, false
	}
	return slot, true
}

func (a *api) handleListSlots(w http.ResponseWriter, r *http.Request) {
	rows := a.sess.ListSlots()
	if rows == nil {
		rows = []protocol.SlotInfo{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *api) handleSlotMetadata(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	meta, present, err := a.sess.SlotMetadata(slot)
	if err != nil {
		writeOpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slot":     slot,
		"present":  present,
		"metadata": meta,
	})
}

func (a *api) handleSave(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	if err := a.sess.SaveToSlot(slot); err != nil {
		writeOpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"slot": slot})
}

func (a *api) handleLoad(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	if err := a.sess.LoadFromSlot(slot); err != nil {
		writeOpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"slot": slot})
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	if err := a.sess.DeleteSave(slot); err != nil {
		writeOpErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCloudUpload(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "1"
	if err := a.sess.CloudUpload(slot, force); err != nil {
		writeOpErr(w, err)
		return
	}
	// Accepted: the outcome arrives on the event feed.
	writeJSON(w, http.StatusAccepted, map[string]int{"slot": slot})
}

func (a *api) handleCloudDownload(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	if err := a.sess.CloudDownload(slot); err != nil {
		writeOpErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"slot": slot})
}

func (a *api) handleCloudDelete(w http.ResponseWriter, r *http.Request) {
	slot, ok := a.slotParam(w, r)
	if !ok {
		return
	}
	if err := a.sess.CloudDelete(slot); err != nil {
		writeOpErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"slot": slot})
}

func (a *api) handleCloudList(w http.ResponseWriter, r *http.Request) {
	done := make(chan []cloudsave.RemoteSlot, 1)
	if err := a.sess.CloudList(func(slots []cloudsave.RemoteSlot) { done <- slots }); err != nil {
		writeOpErr(w, err)
		return
	}
	select {
	case slots := <-done:
		out := make([]protocol.RemoteSlotInfo, 0, len(slots))
		for _, s := range slots {
			out = append(out, protocol.RemoteSlotInfo{
				Slot:     s.Slot,
				SavedAt:  s.SavedAt,
				Location: s.Location,
				PlayTime: s.PlayTime,
				Revision: s.Revision,
			})
		}
		writeJSON(w, http.StatusOK, out)
	case <-r.Context().Done():
	}
}

func (a *api) handleCloudStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sess.CloudStats())
}

func (a *api) handleLedgerList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggered": a.ledger.Snapshot()})
}

func (a *api) handleLedgerQuery(w http.ResponseWriter, r *http.Request) {
	event := r.PathValue("event")
	writeJSON(w, http.StatusOK, map[string]any{
		"event":     event,
		"triggered": a.ledger.IsTriggered(event),
	})
}

func (a *api) handleLedgerMark(w http.ResponseWriter, r *http.Request) {
	event := r.PathValue("event")
	if event == "" {
		writeErr(w, http.StatusBadRequest, protocol.ErrBadRequest, "empty event id")
		return
	}
	already := a.ledger.IsTriggered(event)
	a.ledger.MarkTriggered(event)
	writeJSON(w, http.StatusOK, map[string]any{
		"event":             event,
		"already_triggered": already,
	})
}

func (a *api) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Location == "" {
		writeErr(w, http.StatusBadRequest, protocol.ErrBadRequest, "expected {\"location\": \"...\"}")
		return
	}
	a.sess.SetLocation(body.Location)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams lifecycle signals over a websocket until the client
// goes away.
func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sigs, cancel := a.sess.Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client messages, but reads surface
	// disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sigs:
			if !ok {
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(protocol.EncodeError(code, msg))
}

func writeOpErr(w http.ResponseWriter, err error) {
	code := session.CodeFor(err)
	status := http.StatusInternalServerError
	switch code {
	case protocol.ErrBusy:
		status = http.StatusConflict
	case protocol.ErrNotFound:
		status = http.StatusNotFound
	case protocol.ErrNotReady:
		status = http.StatusServiceUnavailable
	case protocol.ErrCorruptSave, protocol.ErrEmptyPayload:
		status = http.StatusUnprocessableEntity
	case protocol.ErrRemoteNewer:
		status = http.StatusPreconditionFailed
	}
	if errors.Is(err, session.ErrNotStarted) {
		status = http.StatusServiceUnavailable
		code = protocol.ErrInternal
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	writeErr(w, status, code, msg)
}
