package cloudsave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fracturedechoes.app/internal/save"
)

// RemoteDocument is the per-slot cloud shape: the full save document
// serialization plus the metadata needed for listing without re-parsing it.
type RemoteDocument struct {
	JSON     string  `json:"json"`
	SavedAt  string  `json:"saved_at"`
	Location string  `json:"location"`
	PlayTime float64 `json:"play_time_seconds"`
	Revision string  `json:"revision"`
}

type RemoteSlot struct {
	Slot     int
	SavedAt  string
	Location string
	PlayTime float64
	Revision string
}

// CaptureFunc produces the current in-memory save document. Uploads read
// live state, never the local slot file, so a stale local copy cannot be
// pushed by accident.
type CaptureFunc func() (save.Document, error)

type Stats struct {
	UploadSuccessTotal   uint64 `json:"upload_success_total"`
	UploadFailTotal      uint64 `json:"upload_fail_total"`
	DownloadSuccessTotal uint64 `json:"download_success_total"`
	DownloadFailTotal    uint64 `json:"download_fail_total"`
	LastSuccessUnix      int64  `json:"last_success_unix"`
	LastErrorUnix        int64  `json:"last_error_unix"`
}

// Mirror serializes cloud operations one at a time behind a busy flag. A
// second request while one is in flight is rejected, not queued.
type Mirror struct {
	client  *Client
	prefix  string
	capture CaptureFunc
	logger  *log.Logger

	opTimeout time.Duration

	mu       sync.Mutex
	identity string

	busy atomic.Bool

	uploadSuccessTotal   atomic.Uint64
	uploadFailTotal      atomic.Uint64
	downloadSuccessTotal atomic.Uint64
	downloadFailTotal    atomic.Uint64
	lastSuccessUnix      atomic.Int64
	lastErrorUnix        atomic.Int64
}

func NewMirror(client *Client, prefix string, capture CaptureFunc, logger *log.Logger) *Mirror {
	return &Mirror{
		client:    client,
		prefix:    strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		capture:   capture,
		logger:    logger,
		opTimeout: 2 * time.Minute,
	}
}

// Ready installs the anonymous identity. Every operation fails with
// save.ErrNotReady until this is called.
func (m *Mirror) Ready(identity string) {
	m.mu.Lock()
	m.identity = strings.TrimSpace(identity)
	m.mu.Unlock()
}

func (m *Mirror) currentIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

func (m *Mirror) IsReady() bool { return m.currentIdentity() != "" }

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		UploadSuccessTotal:   m.uploadSuccessTotal.Load(),
		UploadFailTotal:      m.uploadFailTotal.Load(),
		DownloadSuccessTotal: m.downloadSuccessTotal.Load(),
		DownloadFailTotal:    m.downloadFailTotal.Load(),
		LastSuccessUnix:      m.lastSuccessUnix.Load(),
		LastErrorUnix:        m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) slotKey(identity string, slot int) string {
	key := path.Join(identity, "slots", fmt.Sprintf("slot_%02d.json", slot))
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}
	return key
}

func (m *Mirror) slotPrefix(identity string) string {
	p := path.Join(identity, "slots") + "/"
	if m.prefix != "" {
		p = m.prefix + "/" + p
	}
	return p
}

// begin reserves the single in-flight op. The returned error is immediate;
// no network request is started when it is non-nil.
func (m *Mirror) begin() (identity string, err error) {
	identity = m.currentIdentity()
	if identity == "" {
		return "", save.ErrNotReady
	}
	if !m.busy.CompareAndSwap(false, true) {
		return "", fmt.Errorf("cloud mirror: %w", save.ErrBusy)
	}
	return identity, nil
}

// Upload captures the current live state and writes it to the remote slot.
// Unless force is set, an upload is rejected with save.ErrRemoteNewer when
// the remote copy carries a newer timestamp than the captured document.
// The result is delivered on done from the operation goroutine.
func (m *Mirror) Upload(slot int, force bool, done func(error)) error {
	identity, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		err := m.uploadOnce(identity, slot, force)
		if err != nil {
			m.uploadFailTotal.Add(1)
			m.lastErrorUnix.Store(time.Now().UTC().Unix())
			m.printf("cloud upload failed slot=%d err=%v", slot, err)
		} else {
			m.uploadSuccessTotal.Add(1)
			m.lastSuccessUnix.Store(time.Now().UTC().Unix())
			m.printf("cloud upload ok slot=%d", slot)
		}
		m.busy.Store(false)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (m *Mirror) uploadOnce(identity string, slot int, force bool) error {
	doc, err := m.capture()
	if err != nil {
		return fmt.Errorf("capture live state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	key := m.slotKey(identity, slot)
	if !force {
		if remote, err := m.fetchRemote(ctx, key); err == nil {
			if remote.SavedAt > doc.SavedAt {
				return fmt.Errorf("slot %d remote saved_at=%s local=%s: %w", slot, remote.SavedAt, doc.SavedAt, save.ErrRemoteNewer)
			}
		} else if !errors.Is(err, save.ErrNotFound) {
			return err
		}
	}

	raw, err := save.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode slot %d: %w", slot, err)
	}
	rd := RemoteDocument{
		JSON:     string(raw),
		SavedAt:  doc.SavedAt,
		Location: doc.Location,
		PlayTime: doc.PlayTime,
		Revision: uuid.NewString(),
	}
	body, err := json.Marshal(rd)
	if err != nil {
		return err
	}
	return m.client.PutObject(ctx, key, body)
}

// Download fetches the remote slot document and hands it to apply (normally
// the registry's distribute pass). Missing slot maps to save.ErrNotFound; a
// present document with no payload maps to save.ErrEmptyPayload.
func (m *Mirror) Download(slot int, apply func(save.Document) error, done func(error)) error {
	identity, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		err := m.downloadOnce(identity, slot, apply)
		if err != nil {
			m.downloadFailTotal.Add(1)
			m.lastErrorUnix.Store(time.Now().UTC().Unix())
			m.printf("cloud download failed slot=%d err=%v", slot, err)
		} else {
			m.downloadSuccessTotal.Add(1)
			m.lastSuccessUnix.Store(time.Now().UTC().Unix())
			m.printf("cloud download ok slot=%d", slot)
		}
		m.busy.Store(false)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (m *Mirror) downloadOnce(identity string, slot int, apply func(save.Document) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	rd, err := m.fetchRemote(ctx, m.slotKey(identity, slot))
	if err != nil {
		return err
	}
	if strings.TrimSpace(rd.JSON) == "" {
		return fmt.Errorf("slot %d: %w", slot, save.ErrEmptyPayload)
	}
	doc, err := save.DecodeDocument([]byte(rd.JSON))
	if err != nil {
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	if apply == nil {
		return nil
	}
	return apply(doc)
}

// Delete removes the remote slot document. A missing document is not an
// error.
func (m *Mirror) Delete(slot int, done func(error)) error {
	identity, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
		err := m.client.DeleteObject(ctx, m.slotKey(identity, slot))
		cancel()
		if err != nil {
			m.printf("cloud delete failed slot=%d err=%v", slot, err)
		}
		m.busy.Store(false)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// ListAll enumerates the remote documents for the current identity. Any
// failure, including not-ready, yields an empty list rather than an error;
// listing is for UI and must not crash offline play.
func (m *Mirror) ListAll(done func([]RemoteSlot)) error {
	identity := m.currentIdentity()
	if identity == "" {
		if done != nil {
			done(nil)
		}
		return nil
	}
	if !m.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("cloud mirror: %w", save.ErrBusy)
	}
	go func() {
		slots := m.listOnce(identity)
		m.busy.Store(false)
		if done != nil {
			done(slots)
		}
	}()
	return nil
}

func (m *Mirror) listOnce(identity string) []RemoteSlot {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	objs, err := m.client.ListObjects(ctx, m.slotPrefix(identity))
	if err != nil {
		m.printf("cloud list failed err=%v", err)
		return nil
	}
	var out []RemoteSlot
	for _, obj := range objs {
		slot, ok := slotFromKey(obj.Key)
		if !ok {
			continue
		}
		rd, err := m.fetchRemote(ctx, obj.Key)
		if err != nil {
			m.printf("cloud list skip key=%s err=%v", obj.Key, err)
			continue
		}
		out = append(out, RemoteSlot{
			Slot:     slot,
			SavedAt:  rd.SavedAt,
			Location: rd.Location,
			PlayTime: rd.PlayTime,
			Revision: rd.Revision,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (m *Mirror) fetchRemote(ctx context.Context, key string) (RemoteDocument, error) {
	b, err := m.client.GetObject(ctx, key)
	if err != nil {
		return RemoteDocument{}, err
	}
	var rd RemoteDocument
	if err := json.Unmarshal(b, &rd); err != nil {
		return RemoteDocument{}, fmt.Errorf("key %s: %w: %v", key, save.ErrCorrupt, err)
	}
	return rd, nil
}

func slotFromKey(key string) (int, bool) {
	base := path.Base(key)
	var slot int
	if _, err := fmt.Sscanf(base, "slot_%d.json", &slot); err != nil {
		return 0, false
	}
	return slot, true
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
