// Package session orchestrates save/load for one running game session: it
// owns the saveable registry, the local slot store, the optional cloud
// mirror, and the lifecycle signals UI layers subscribe to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	persistlog "fracturedechoes.app/internal/persistence/log"

	"fracturedechoes.app/internal/persistence/cloudsave"
	"fracturedechoes.app/internal/persistence/indexdb"
	"fracturedechoes.app/internal/persistence/slotstore"
	"fracturedechoes.app/internal/protocol"
	"fracturedechoes.app/internal/save"
)

// AutosaveSlot is reserved for the periodic autosave.
const AutosaveSlot = 0

var ErrNotStarted = errors.New("session not started")

type Config struct {
	Store   *slotstore.Store
	Mirror  *cloudsave.Mirror
	Index   *indexdb.SQLiteIndex
	Journal *persistlog.OpJournal
	Logger  *log.Logger

	AutosaveEvery time.Duration
	StartLocation string

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

type Session struct {
	store   *slotstore.Store
	mirror  *cloudsave.Mirror
	index   *indexdb.SQLiteIndex
	journal *persistlog.OpJournal
	logger  *log.Logger

	codec *save.Codec
	reg   *save.Registry
	now   func() time.Time

	mu        sync.Mutex
	entities  []save.Saveable
	started   bool
	location  string
	playBase  float64
	resumedAt time.Time

	busy atomic.Bool
	hub  *signalHub

	autosaveEvery time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func New(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	codec := save.NewCodec()
	s := &Session{
		store:         cfg.Store,
		mirror:        cfg.Mirror,
		index:         cfg.Index,
		journal:       cfg.Journal,
		logger:        cfg.Logger,
		codec:         codec,
		reg:           save.NewRegistry(codec, cfg.Logger),
		now:           now,
		location:      cfg.StartLocation,
		resumedAt:     now(),
		hub:           newSignalHub(),
		autosaveEvery: cfg.AutosaveEvery,
		stop:          make(chan struct{}),
	}
	return s
}

func (s *Session) Codec() *save.Codec { return s.codec }

// AttachMirror installs the cloud mirror. Call before Start; the mirror's
// capture function typically points back at CaptureDocument.
func (s *Session) AttachMirror(m *cloudsave.Mirror) {
	s.mu.Lock()
	s.mirror = m
	s.mu.Unlock()
}

func (s *Session) mirrorRef() *cloudsave.Mirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror
}

// RegisterEntity adds a saveable before the session starts. Registration is
// closed once Start runs: every entity must exist before the first
// distribute pass, there is no late joining.
func (s *Session) RegisterEntity(e save.Saveable) error {
	if e == nil || e.SaveID() == "" {
		return fmt.Errorf("register: nil or unidentified saveable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("register %s: %w", e.SaveID(), save.ErrSealed)
	}
	for _, cur := range s.entities {
		if cur.SaveID() == e.SaveID() {
			return fmt.Errorf("register: duplicate save_id %q", e.SaveID())
		}
	}
	s.entities = append(s.entities, e)
	return nil
}

// Start seals registration and begins the autosave timer (when configured).
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.resumedAt = s.now()
	s.mu.Unlock()

	if s.autosaveEvery > 0 {
		s.wg.Add(1)
		go s.autosaveLoop()
	}
	return nil
}

func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Session) Subscribe() (<-chan protocol.SignalMsg, func()) {
	return s.hub.Subscribe()
}

func (s *Session) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *Session) SetLocation(loc string) {
	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()
}

// PlayTime is elapsed play seconds: the value restored from the last load
// plus wall time since.
func (s *Session) PlayTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playBase + s.now().Sub(s.resumedAt).Seconds()
}

func (s *Session) liveEntities() []save.Saveable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]save.Saveable(nil), s.entities...)
}

// CaptureDocument snapshots current live state into a fresh document.
func (s *Session) CaptureDocument() (save.Document, error) {
	s.mu.Lock()
	info := save.CaptureInfo{
		Now:      s.now(),
		Location: s.location,
		PlayTime: s.playBase + s.now().Sub(s.resumedAt).Seconds(),
	}
	ents := append([]save.Saveable(nil), s.entities...)
	s.mu.Unlock()
	return s.reg.Capture(info, ents), nil
}

func (s *Session) applyDocument(doc save.Document) {
	s.reg.Distribute(doc, s.liveEntities())
	s.mu.Lock()
	s.location = doc.Location
	s.playBase = doc.PlayTime
	s.resumedAt = s.now()
	s.mu.Unlock()
}

// SaveToSlot captures live state and writes it to slot. A save or load
// already in flight rejects the request with save.ErrBusy.
func (s *Session) SaveToSlot(slot int) error {
	return s.saveToSlot(slot, false)
}

func (s *Session) saveToSlot(slot int, autosave bool) error {
	if !s.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("save slot %d: %w", slot, save.ErrBusy)
	}
	defer s.busy.Store(false)

	s.signal(protocol.SignalSaveStarted, slot, autosave, nil)
	doc, err := s.CaptureDocument()
	if err == nil {
		err = s.store.Write(slot, doc)
	}
	if err != nil {
		s.recordOp("save", slot, err)
		s.signal(protocol.SignalSaveFailed, slot, autosave, err)
		return err
	}
	if s.index != nil {
		s.index.RecordSlot(slot, doc.Meta(), len(doc.Entries), s.store.Path(slot))
	}
	s.recordOp("save", slot, nil)
	s.signal(protocol.SignalSaveCompleted, slot, autosave, nil)
	return nil
}

// LoadFromSlot reads the slot's document and distributes it to the
// registered saveables. An empty slot fails with save.ErrNotFound before any
// entity is touched.
func (s *Session) LoadFromSlot(slot int) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if !s.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("load slot %d: %w", slot, save.ErrBusy)
	}
	defer s.busy.Store(false)

	s.signal(protocol.SignalLoadStarted, slot, false, nil)
	doc, err := s.store.Read(slot)
	if err != nil {
		s.recordOp("load", slot, err)
		s.signal(protocol.SignalLoadFailed, slot, false, err)
		return err
	}
	s.applyDocument(doc)
	s.recordOp("load", slot, nil)
	s.signal(protocol.SignalLoadCompleted, slot, false, nil)
	return nil
}

func (s *Session) SaveExists(slot int) bool { return s.store.Exists(slot) }

func (s *Session) SlotMetadata(slot int) (save.Metadata, bool, error) {
	return s.store.ReadMetadata(slot)
}

func (s *Session) DeleteSave(slot int) error {
	err := s.store.Delete(slot)
	s.recordOp("delete", slot, err)
	if err != nil {
		return err
	}
	if s.index != nil {
		s.index.RecordSlotDeleted(slot)
	}
	s.signal(protocol.SignalSaveDeleted, slot, false, nil)
	return nil
}

// ListSlots prefers the sqlite index and falls back to scanning save files.
func (s *Session) ListSlots() []protocol.SlotInfo {
	if s.index != nil {
		if rows, err := s.index.ListSlots(); err == nil {
			return rows
		} else {
			s.printf("list slots via index: %v", err)
		}
	}
	var out []protocol.SlotInfo
	for slot := 0; slot < s.store.MaxSlots(); slot++ {
		meta, ok, err := s.store.ReadMetadata(slot)
		if err != nil || !ok {
			continue
		}
		out = append(out, protocol.SlotInfo{
			Slot:     slot,
			SavedAt:  meta.SavedAt,
			Location: meta.Location,
			PlayTime: meta.PlayTime,
		})
	}
	return out
}

// CloudUpload pushes current live state to the remote slot. The immediate
// error covers not-ready and busy; the outcome arrives as a signal. The
// session's busy flag is held for the whole operation: the upload's capture
// reads live entity state, so a local save or load must not run under it.
func (s *Session) CloudUpload(slot int, force bool) error {
	mirror := s.mirrorRef()
	if mirror == nil {
		return fmt.Errorf("cloud upload: %w", save.ErrNotReady)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("cloud upload slot %d: %w", slot, save.ErrBusy)
	}
	s.signal(protocol.SignalUploadStarted, slot, false, nil)
	err := mirror.Upload(slot, force, func(opErr error) {
		s.busy.Store(false)
		s.recordOp("cloud_upload", slot, opErr)
		if opErr != nil {
			s.signal(protocol.SignalUploadFailed, slot, false, opErr)
			return
		}
		s.signal(protocol.SignalUploadDone, slot, false, nil)
	})
	if err != nil {
		s.busy.Store(false)
		s.recordOp("cloud_upload", slot, err)
		s.signal(protocol.SignalUploadFailed, slot, false, err)
	}
	return err
}

// CloudDownload fetches the remote slot and distributes it like a local
// load, including the busy flag: no save or load may run while the fetched
// document is applied to live entities.
func (s *Session) CloudDownload(slot int) error {
	mirror := s.mirrorRef()
	if mirror == nil {
		return fmt.Errorf("cloud download: %w", save.ErrNotReady)
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if !s.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("cloud download slot %d: %w", slot, save.ErrBusy)
	}
	err := mirror.Download(slot, func(doc save.Document) error {
		s.applyDocument(doc)
		return nil
	}, func(opErr error) {
		s.busy.Store(false)
		s.recordOp("cloud_download", slot, opErr)
		if opErr != nil {
			s.signal(protocol.SignalDownloadFailed, slot, false, opErr)
			return
		}
		s.signal(protocol.SignalDownloadDone, slot, false, nil)
	})
	if err != nil {
		s.busy.Store(false)
		s.recordOp("cloud_download", slot, err)
		s.signal(protocol.SignalDownloadFailed, slot, false, err)
	}
	return err
}

func (s *Session) CloudDelete(slot int) error {
	mirror := s.mirrorRef()
	if mirror == nil {
		return fmt.Errorf("cloud delete: %w", save.ErrNotReady)
	}
	return mirror.Delete(slot, func(opErr error) {
		s.recordOp("cloud_delete", slot, opErr)
	})
}

// CloudStats reports mirror operation counters; zeros when no mirror is
// attached.
func (s *Session) CloudStats() cloudsave.Stats {
	return s.mirrorRef().Stats()
}

func (s *Session) CloudList(done func([]cloudsave.RemoteSlot)) error {
	mirror := s.mirrorRef()
	if mirror == nil {
		if done != nil {
			done(nil)
		}
		return nil
	}
	return mirror.ListAll(done)
}

func (s *Session) autosaveLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.autosaveEvery)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if err := s.saveToSlot(AutosaveSlot, true); err != nil {
				if errors.Is(err, save.ErrBusy) {
					continue
				}
				s.printf("autosave: %v", err)
			}
		}
	}
}

func (s *Session) signal(typ string, slot int, autosave bool, err error) {
	msg := protocol.SignalMsg{
		Type:     typ,
		Slot:     slot,
		Autosave: autosave,
		At:       s.now().UTC().Format(save.TimeLayout),
	}
	if err != nil {
		msg.Code = CodeFor(err)
		msg.Message = err.Error()
	}
	s.hub.publish(msg)
}

func (s *Session) recordOp(op string, slot int, err error) {
	entry := protocol.OpLogEntry{
		At:   s.now().UTC().Format(save.TimeLayout),
		Op:   op,
		Slot: slot,
		OK:   err == nil,
	}
	if err != nil {
		entry.Code = CodeFor(err)
		entry.Message = err.Error()
	}
	if s.journal != nil {
		if werr := s.journal.WriteOp(entry); werr != nil {
			s.printf("op journal: %v", werr)
		}
	}
	if s.index != nil {
		s.index.RecordOp(entry)
	}
}

func (s *Session) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// CodeFor maps an operation error onto its wire error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, save.ErrBusy):
		return protocol.ErrBusy
	case errors.Is(err, save.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, save.ErrCorrupt):
		return protocol.ErrCorruptSave
	case errors.Is(err, save.ErrRemoteNewer):
		return protocol.ErrRemoteNewer
	case errors.Is(err, save.ErrEmptyPayload):
		return protocol.ErrEmptyPayload
	case errors.Is(err, save.ErrNotReady):
		return protocol.ErrNotReady
	case cloudsave.IsRemoteWrite(err):
		return protocol.ErrRemoteWrite
	case isTransport(err):
		return protocol.ErrNetwork
	default:
		return protocol.ErrIO
	}
}

func isTransport(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
