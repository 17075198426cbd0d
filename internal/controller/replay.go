package controller

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/cookbot/internal/engine"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

// ErrReplayDiverged is returned when a journaled command no longer changes
// the reconstructed kitchen. Only changing commands are journaled, so this
// means the journal does not belong to the base export.
var ErrReplayDiverged = errors.New("journal diverged from reconstructed state")

// ErrReplayOutOfOrder is returned when journal events do not follow each
// other: a sequence number repeats or goes backwards, or events are missing
// between the base and the next run.
var ErrReplayOutOfOrder = errors.New("journal events out of order")

// CommandFromEvent converts a journal event back into the command it records.
// START events mark a run and have no command.
func CommandFromEvent(e wal.Event) (engine.Command, error) {
	if !e.Type.Valid() || e.Type == wal.EventStart {
		return engine.Command{}, fmt.Errorf("%w: %q", wal.ErrUnknownEvent, e.Type)
	}
	cmd := engine.Command{Action: engine.Action(e.Type), BotID: e.BotID}
	if e.Type == wal.EventAddOrder {
		t, err := types.ParseOrderType(string(e.OrderType))
		if err != nil {
			return engine.Command{}, fmt.Errorf("seq=%d: %w", e.Seq, err)
		}
		cmd.OrderType = t
	}
	return cmd, nil
}

// ReplayResult is a kitchen reconstructed for auditing.
type ReplayResult struct {
	State    types.Snapshot
	LastSeq  uint64 // last event applied, or the base LastSeq
	Applied  int    // events applied on top of the base
	Skipped  int    // events already covered by the base
	Journals int    // journal files read
	Runs     int    // START events applied
}

// Replay rebuilds a kitchen from base (an export, or the zero value for an
// empty kitchen) and the journal files in order, oldest first. Events at or
// below base.LastSeq are skipped. A START event resets the kitchen to empty
// with the cook time it records, so a journal spanning several runs rebuilds
// the last one. Sequence numbers must increase; after the base they must be
// contiguous unless a START begins a new run. The result is never loaded back
// into a running controller.
func Replay(base types.ExportData, journalPaths ...string) (ReplayResult, error) {
	e := engine.New(base.CookSeconds)
	res := ReplayResult{State: base.State.Clone(), LastSeq: base.LastSeq}
	var prev uint64 // last event read, applied or skipped

	for _, path := range journalPaths {
		err := wal.ReplayFile(path, func(ev wal.Event) error {
			if prev != 0 && ev.Seq <= prev {
				return fmt.Errorf("%w: seq=%d follows seq=%d", ErrReplayOutOfOrder, ev.Seq, prev)
			}
			prev = ev.Seq
			if ev.Seq <= res.LastSeq {
				res.Skipped++
				return nil
			}

			if ev.Type == wal.EventStart {
				e = engine.New(ev.CookSeconds)
				res.State = types.Snapshot{Bots: []types.Bot{}, Orders: []types.Order{}}
				res.LastSeq = ev.Seq
				res.Applied++
				res.Runs++
				return nil
			}
			if ev.Seq != res.LastSeq+1 {
				return fmt.Errorf("%w: seq=%d after seq=%d", ErrReplayOutOfOrder, ev.Seq, res.LastSeq)
			}

			cmd, err := CommandFromEvent(ev)
			if err != nil {
				return err
			}
			next, changed := e.Apply(res.State, cmd)
			if !changed {
				return fmt.Errorf("%w: seq=%d %s", ErrReplayDiverged, ev.Seq, cmd)
			}
			res.State = next
			res.LastSeq = ev.Seq
			res.Applied++
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("replay %s: %w", path, err)
		}
		res.Journals++
	}
	return res, nil
}
