// Package indexdb maintains a sqlite read-model of slot metadata and
// save/load history. It is a secondary index: save files on disk remain the
// source of truth, and the writer drops entries rather than stall a save.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fracturedechoes.app/internal/protocol"
	"fracturedechoes.app/internal/save"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqSlot reqKind = iota + 1
	reqSlotDelete
	reqOp
)

type req struct {
	kind reqKind

	slot slotRow
	op   protocol.OpLogEntry
}

type slotRow struct {
	Slot      int
	SavedAt   string
	Location  string
	PlayTime  float64
	Entries   int
	Path      string
	UpdatedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style op history; NORMAL is enough durability for
	// a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS slots (
			slot INTEGER PRIMARY KEY,
			saved_at TEXT NOT NULL,
			location TEXT NOT NULL,
			play_time_seconds REAL NOT NULL,
			entries INTEGER NOT NULL,
			path TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			op TEXT NOT NULL,
			slot INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_slot_seq ON ops(slot, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSlot upserts the metadata row after a successful write to a slot.
func (s *SQLiteIndex) RecordSlot(slot int, meta save.Metadata, entries int, path string) {
	if s == nil || s.closed.Load() {
		return
	}
	r := slotRow{
		Slot:      slot,
		SavedAt:   meta.SavedAt,
		Location:  meta.Location,
		PlayTime:  meta.PlayTime,
		Entries:   entries,
		Path:      path,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSlot, slot: r}:
	default:
	}
}

// RecordSlotDeleted drops the metadata row after a slot delete.
func (s *SQLiteIndex) RecordSlotDeleted(slot int) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSlotDelete, slot: slotRow{Slot: slot}}:
	default:
	}
}

// RecordOp appends one save/load/delete/cloud operation to the history.
func (s *SQLiteIndex) RecordOp(entry protocol.OpLogEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqOp, op: entry}:
	default:
	}
}

// ListSlots returns indexed metadata for all occupied slots, ordered by slot.
func (s *SQLiteIndex) ListSlots() ([]protocol.SlotInfo, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT slot,saved_at,location,play_time_seconds FROM slots ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.SlotInfo
	for rows.Next() {
		var si protocol.SlotInfo
		if err := rows.Scan(&si.Slot, &si.SavedAt, &si.Location, &si.PlayTime); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSlot, _ := s.db.Prepare(`INSERT OR REPLACE INTO slots(slot,saved_at,location,play_time_seconds,entries,path,updated_at) VALUES(?,?,?,?,?,?,?)`)
	deleteSlot, _ := s.db.Prepare(`DELETE FROM slots WHERE slot = ?`)
	insertOp, _ := s.db.Prepare(`INSERT INTO ops(at,op,slot,ok,code,message) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertSlot != nil {
			_ = insertSlot.Close()
		}
		if deleteSlot != nil {
			_ = deleteSlot.Close()
		}
		if insertOp != nil {
			_ = insertOp.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 64
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Commit whenever the queue drains: the single connection must not stay
	// pinned to an open tx while readers (ListSlots) wait for it.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSlot:
			sr := r.slot
			if insertSlot != nil {
				if _, err := tx.Stmt(insertSlot).Exec(
					sr.Slot,
					sr.SavedAt,
					sr.Location,
					sr.PlayTime,
					sr.Entries,
					sr.Path,
					sr.UpdatedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSlotDelete:
			if deleteSlot != nil {
				if _, err := tx.Stmt(deleteSlot).Exec(r.slot.Slot); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqOp:
			op := r.op
			if insertOp != nil {
				ok := 0
				if op.OK {
					ok = 1
				}
				if _, err := tx.Stmt(insertOp).Exec(op.At, op.Op, op.Slot, ok, op.Code, op.Message); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
