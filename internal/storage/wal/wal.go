package wal

// ============================================================================
// Command Journal
// Responsibilities:
// 1. Append kitchen commands to an append-only JSON lines file
// 2. Replay the journal so a recorded run can be reconstructed and audited
// 3. Rotate the file after an export, archiving the old one gzip-compressed
//
// The journal is an audit trail: a kitchen never restores from it on start.
// ============================================================================

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// FileInterface is the subset of *os.File the journal writes through.
// Tests substitute failing implementations.
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Options tunes a WAL. The zero value flushes every event without fsync.
type Options struct {
	SyncOnAppend  bool             // fsync on every flush
	BufferSize    int              // events buffered before a flush; <=1 writes through
	FlushInterval time.Duration    // flush when the oldest buffered event is this old
	Now           func() time.Time // event timestamps; defaults to time.Now
}

// WAL is an open command journal.
type WAL struct {
	mu      sync.Mutex
	file    FileInterface
	encoder *json.Encoder
	path    string
	seq     uint64
	closed  bool
	opts    Options

	buffer        []Event
	lastFlushTime time.Time
}

// NewWAL opens or creates the journal at path.
//
// An existing file is appended to. Numbering continues after the last event
// of the file or of its archives, whichever is higher, so sequence numbers
// never repeat across rotations and restarts. A file whose tail cannot be
// parsed is rejected.
func NewWAL(path string, opts Options) (*WAL, error) {
	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var seq uint64
	last, err := GetLastEvent(path)
	switch {
	case err == nil:
		seq = last.Seq
	case errors.Is(err, ErrEmptyWAL), errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	archived, err := lastArchivedSeq(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	seq = max(seq, archived)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		file:          file,
		encoder:       json.NewEncoder(file),
		path:          path,
		seq:           seq,
		opts:          opts,
		buffer:        make([]Event, 0, opts.BufferSize),
		lastFlushTime: opts.Now(),
	}, nil
}

// Append journals one command and returns its sequence number.
//
// The event is buffered until the buffer is full, the flush interval has
// elapsed, or forceFlush is set.
func (w *WAL) Append(rec Record, forceFlush bool) (uint64, error) {
	if !rec.Type.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, rec.Type)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWALClosed
	}

	w.seq++
	now := w.opts.Now()
	event := Event{
		Seq:         w.seq,
		Type:        rec.Type,
		BotID:       rec.BotID,
		OrderType:   rec.OrderType,
		Timestamp:   now.UnixMilli(),
		Instance:    rec.Instance,
		CookSeconds: rec.CookSeconds,
	}
	event.Checksum = CalculateChecksum(event)
	w.buffer = append(w.buffer, event)

	needFlush := forceFlush ||
		len(w.buffer) >= w.opts.BufferSize ||
		(w.opts.FlushInterval > 0 && now.Sub(w.lastFlushTime) >= w.opts.FlushInterval)
	if needFlush {
		if err := w.flushLocked(); err != nil {
			return event.Seq, err
		}
	}
	return event.Seq, nil
}

// Flush writes buffered events to the file.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}
	return w.flushLocked()
}

// Replay flushes pending events and feeds every event of the current file
// to handler in order.
func (w *WAL) Replay(handler EventHandler) error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.mu.Lock()
	path := w.path
	w.mu.Unlock()
	return ReplayFile(path, handler)
}

// ReplayFile feeds every event of the journal at path to handler. Archives
// produced by Rotate (".gz") are read transparently.
//
// Each event's checksum is verified before it is handed over. Replay stops at
// the first malformed event, checksum mismatch or handler error.
func ReplayFile(path string, handler EventHandler) error {
	r, err := openJournal(path)
	if err != nil {
		return err
	}
	defer r.Close()

	decoder := json.NewDecoder(r)
	var lastSeq uint64
	for decoder.More() {
		offset := decoder.InputOffset()
		var event Event
		if err := decoder.Decode(&event); err != nil {
			return &CorruptionError{Seq: lastSeq, Offset: offset, Cause: err}
		}
		if !VerifyChecksum(event) {
			return &ChecksumError{Seq: event.Seq, Expected: CalculateChecksum(event), Actual: event.Checksum}
		}
		if err := handler(event); err != nil {
			return err
		}
		lastSeq = event.Seq
	}
	return nil
}

// Rotate archives the current file as <path>.<timestamp>.<lastSeq>.gz and
// starts an empty one. Sequence numbers keep counting across the rotation so
// that an export can name the last event it includes. A file without events
// is left in place and Rotate returns an empty archive path.
func (w *WAL) Rotate() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", ErrWALClosed
	}
	if err := w.flushLocked(); err != nil {
		return "", err
	}
	if info, err := os.Stat(w.path); err == nil && info.Size() == 0 {
		return "", nil
	}
	if err := w.file.Close(); err != nil {
		return "", err
	}

	stamp := w.opts.Now().Format("20060102_150405.000")
	backupPath := fmt.Sprintf("%s.%s.%d", w.path, stamp, w.seq)
	if err := os.Rename(w.path, backupPath); err != nil {
		return "", err
	}

	newFile, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	w.file = newFile
	w.encoder = json.NewEncoder(newFile)
	w.buffer = w.buffer[:0]
	w.lastFlushTime = w.opts.Now()

	archive := backupPath + ".gz"
	if err := compressWALFile(backupPath, archive); err != nil {
		return backupPath, fmt.Errorf("compress %s: %w", backupPath, err)
	}
	if err := os.Remove(backupPath); err != nil {
		return archive, err
	}
	return archive, nil
}

// Close flushes and closes the journal. A closed WAL cannot be reused.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// GetLastSeq returns the sequence number of the last appended event.
func (w *WAL) GetLastSeq() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Path returns the journal file path.
func (w *WAL) Path() string {
	return w.path
}

// ============================================================================
// Internal helpers
// ============================================================================

// flushLocked writes buffered events. Caller holds w.mu.
func (w *WAL) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}
	for _, event := range w.buffer {
		if err := w.encoder.Encode(event); err != nil {
			return err
		}
	}
	w.buffer = w.buffer[:0]
	w.lastFlushTime = w.opts.Now()
	if w.opts.SyncOnAppend {
		return w.file.Sync()
	}
	return nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.file.Close()
}

// openJournal opens a journal file for reading, decompressing archives.
func openJournal(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return file, nil
	}
	zr, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, &CorruptionError{Cause: err}
	}
	return gzipFile{Reader: zr, file: file}, nil
}

// compressWALFile gzips srcPath into dstPath.
func compressWALFile(srcPath, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	gzipWriter := gzip.NewWriter(dstFile)
	if _, err := io.Copy(gzipWriter, srcFile); err != nil {
		gzipWriter.Close()
		return err
	}
	return gzipWriter.Close()
}
