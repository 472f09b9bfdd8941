package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Journal event types
const (
	EvtConnect     = "connect"
	EvtDisconnect  = "disconnect"
	EvtAssigned    = "assigned"
	EvtTransferred = "transferred"
	EvtClaimed     = "claimed"
	EvtDestroyed   = "destroyed"
	EvtViolation   = "violation"
)

// JournalEvent is one ownership lifecycle or protocol event
type JournalEvent struct {
	Type      string       `json:"type"`
	Conn      ConnectionID `json:"conn"`
	Handle    Handle       `json:"handle"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"ts"`
}

// Journal records events with batched background writes to sqlite and, when
// configured, an hourly zstd-compressed JSONL archive. A nil *Journal discards events.
type Journal struct {
	db      *DB
	archive *archiveWriter
	events  chan JournalEvent
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once

	flushEvery time.Duration
	batchSize  int
}

// NewJournal creates and starts the journal writer. db may be nil; archiveDir may be empty.
func NewJournal(db *DB, archiveDir string) *Journal {
	j := &Journal{
		db:         db,
		events:     make(chan JournalEvent, 1024),
		stop:       make(chan struct{}),
		flushEvery: 5 * time.Second,
		batchSize:  50,
	}
	if archiveDir != "" {
		j.archive = newArchiveWriter(archiveDir, "journal")
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Track enqueues an event without blocking the world loop
func (j *Journal) Track(evt string, conn ConnectionID, h Handle, detail string) {
	if j == nil {
		return
	}
	select {
	case j.events <- JournalEvent{
		Type:      evt,
		Conn:      conn,
		Handle:    h,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// full, drop
	}
}

// Stop flushes pending events and shuts the writer down
func (j *Journal) Stop() {
	if j == nil {
		return
	}
	j.stopped.Do(func() {
		close(j.stop)
		j.wg.Wait()
		if j.archive != nil {
			if err := j.archive.Close(); err != nil {
				log.Printf("journal: archive close: %v", err)
			}
		}
	})
}

func (j *Journal) writer() {
	defer j.wg.Done()

	batch := make([]JournalEvent, 0, 64)
	ticker := time.NewTicker(j.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-j.events:
			batch = append(batch, evt)
			if len(batch) >= j.batchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-j.stop:
			for {
				select {
				case evt := <-j.events:
					batch = append(batch, evt)
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

func (j *Journal) flush(events []JournalEvent) {
	if len(events) == 0 {
		return
	}
	if j.archive != nil {
		for _, evt := range events {
			if err := j.archive.Write(evt); err != nil {
				log.Printf("journal: archive write: %v", err)
				break
			}
		}
	}
	if j.db == nil {
		return
	}

	tx, err := j.db.conn.Begin()
	if err != nil {
		log.Printf("journal: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO journal_events (event_type, conn_id, handle, detail, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("journal: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		detail := sql.NullString{String: evt.Detail, Valid: evt.Detail != ""}
		if _, err := stmt.Exec(evt.Type, int64(evt.Conn), int64(evt.Handle), detail, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("journal: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("journal: commit error: %v", err)
	}
}

// --- Queries ---

// EventCounts returns counts of each event type for the last N days
func (j *Journal) EventCounts(days int) (map[string]int, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	rows, err := j.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM journal_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// RecentViolations returns the newest protocol violations, newest first
func (j *Journal) RecentViolations(limit int) ([]JournalEvent, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	rows, err := j.db.conn.Query(`
		SELECT conn_id, COALESCE(detail, ''), created_at FROM journal_events
		WHERE event_type = ? ORDER BY id DESC LIMIT ?
	`, EvtViolation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JournalEvent
	for rows.Next() {
		var conn int64
		var ts string
		evt := JournalEvent{Type: EvtViolation}
		if err := rows.Scan(&conn, &evt.Detail, &ts); err != nil {
			return nil, err
		}
		evt.Conn = ConnectionID(conn)
		evt.Timestamp, _ = time.Parse(time.RFC3339, ts)
		result = append(result, evt)
	}
	return result, rows.Err()
}

// --- Archive ---

// archiveWriter appends JSON lines to one zstd stream per UTC hour
type archiveWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newArchiveWriter(baseDir, prefix string) *archiveWriter {
	return &archiveWriter{baseDir: baseDir, prefix: prefix}
}

func (a *archiveWriter) Write(v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != a.curHour {
		if err := a.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := a.w.Write(b); err != nil {
		return err
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return err
	}
	return a.w.Flush()
}

func (a *archiveWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *archiveWriter) rotateLocked(hour string) error {
	if err := a.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(a.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(a.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return err
	}
	a.f = f
	a.enc = enc
	a.w = bufio.NewWriterSize(enc, 64*1024)
	a.curHour = hour
	return nil
}

func (a *archiveWriter) closeLocked() error {
	var err error
	if a.w != nil {
		a.w.Flush()
	}
	if a.enc != nil {
		err = a.enc.Close()
		a.enc = nil
	}
	if a.f != nil {
		a.f.Close()
		a.f = nil
	}
	a.w = nil
	return err
}

func (a *archiveWriter) pathForHour(hour string) string {
	return filepath.Join(a.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", a.prefix, hour))
}

// ReadArchive decodes every event in one archive file
func ReadArchive(path string) ([]JournalEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer dec.Close()

	var out []JournalEvent
	jd := json.NewDecoder(dec)
	for {
		var evt JournalEvent
		if err := jd.Decode(&evt); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("decode archive %s: %w", path, err)
		}
		out = append(out, evt)
	}
}
