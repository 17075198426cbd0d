package wal

// ============================================================================
// WAL utilities
// Responsibility: inspection helpers used by NewWAL and the replay command
// ============================================================================

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GetLastEvent returns the last event of the journal at path.
// A file without events yields ErrEmptyWAL.
func GetLastEvent(path string) (*Event, error) {
	var last *Event
	err := ReplayFile(path, func(e Event) error {
		last = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ErrEmptyWAL
	}
	return last, nil
}

// Archives lists the archives Rotate produced for the journal at path,
// oldest first by the last sequence number each holds.
func Archives(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*.gz")
	if err != nil {
		return nil, err
	}
	type archive struct {
		path string
		seq  uint64
	}
	found := make([]archive, 0, len(matches))
	for _, m := range matches {
		if seq, ok := archiveSeq(path, m); ok {
			found = append(found, archive{m, seq})
		}
	}
	slices.SortFunc(found, func(a, b archive) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return strings.Compare(a.path, b.path)
	})
	paths := make([]string, len(found))
	for i, a := range found {
		paths[i] = a.path
	}
	return paths, nil
}

// archiveSeq parses the last sequence number from an archive name of the
// form <path>.<stamp>.<seq>.gz.
func archiveSeq(path, name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, path+".")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".gz")
	if !ok {
		return 0, false
	}
	i := strings.LastIndexByte(rest, '.')
	if i < 0 {
		return 0, false
	}
	seq, err := strconv.ParseUint(rest[i+1:], 10, 64)
	return seq, err == nil
}

func lastArchivedSeq(path string) (uint64, error) {
	archives, err := Archives(path)
	if err != nil || len(archives) == 0 {
		return 0, err
	}
	seq, _ := archiveSeq(path, archives[len(archives)-1])
	return seq, nil
}

// CountEvents counts the events of the journal at path.
func CountEvents(path string) (int, error) {
	n := 0
	err := ReplayFile(path, func(Event) error {
		n++
		return nil
	})
	return n, err
}

// ValidateWAL checks that every event parses, carries a valid checksum and a
// known type, and that sequence numbers are contiguous.
func ValidateWAL(path string) error {
	var lastSeq uint64
	return ReplayFile(path, func(e Event) error {
		if !e.Type.Valid() {
			return fmt.Errorf("%w at seq=%d: %q", ErrUnknownEvent, e.Seq, e.Type)
		}
		if lastSeq != 0 && e.Seq != lastSeq+1 {
			return fmt.Errorf("%w: seq=%d follows seq=%d", ErrSequenceGap, e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		return nil
	})
}

// DumpWAL writes the journal at path in human-readable form, one line per
// event:
//
//	[seq 3] ADD_ORDER vip at 2024-01-01T00:00:01Z (checksum 0x1a2b3c4d)
func DumpWAL(path string, w io.Writer) error {
	return ReplayFile(path, func(e Event) error {
		_, err := fmt.Fprintf(w, "[seq %d] %s at %s (checksum 0x%08x)\n",
			e.Seq, describe(e), time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339), e.Checksum)
		return err
	})
}

func describe(e Event) string {
	switch e.Type {
	case EventStart:
		return fmt.Sprintf("%s %s cook=%ds", e.Type, e.Instance, e.CookSeconds)
	case EventAddOrder:
		return fmt.Sprintf("%s %s", e.Type, e.OrderType)
	case EventWithdrawBot:
		return fmt.Sprintf("%s %s", e.Type, e.BotID)
	default:
		return string(e.Type)
	}
}

// WALStats summarises a journal file.
type WALStats struct {
	TotalEvents int               `json:"total_events"`
	EventTypes  map[EventType]int `json:"event_types"`
	FirstSeq    uint64            `json:"first_seq"`
	LastSeq     uint64            `json:"last_seq"`
	TimeRange   [2]int64          `json:"time_range"` // earliest, latest (unix ms)
}

// GetWALStats scans the journal at path and summarises it.
func GetWALStats(path string) (*WALStats, error) {
	stats := &WALStats{EventTypes: make(map[EventType]int)}
	err := ReplayFile(path, func(e Event) error {
		if stats.TotalEvents == 0 {
			stats.FirstSeq = e.Seq
			stats.TimeRange = [2]int64{e.Timestamp, e.Timestamp}
		}
		stats.TotalEvents++
		stats.EventTypes[e.Type]++
		stats.LastSeq = e.Seq
		stats.TimeRange[0] = min(stats.TimeRange[0], e.Timestamp)
		stats.TimeRange[1] = max(stats.TimeRange[1], e.Timestamp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
