// Package writebuf buffers row mutations per relational transaction
// and replays them against the remote store when the transaction
// commits. Nothing reaches the remote store while a transaction is
// open; an abort drops the buffer without a single network call.
package writebuf

import (
	"context"
	"fmt"
	"log"

	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// State is the buffer lifecycle phase.
type State uint8

const (
	// StateEmpty is a buffer with no writes yet.
	StateEmpty State = iota
	// StateAccumulating is a buffer holding writes for an open transaction.
	StateAccumulating
	// StateDraining is a buffer replaying its writes at commit.
	StateDraining
	// StateDrained is a buffer whose replay finished, failures included.
	StateDrained
	// StateDiscarded is a buffer dropped by an abort.
	StateDiscarded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateDraining:
		return "DRAINING"
	case StateDrained:
		return "DRAINED"
	case StateDiscarded:
		return "DISCARDED"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// WriteKind distinguishes buffered mutations.
type WriteKind string

const (
	WriteInsert WriteKind = "INSERT"
	WriteDelete WriteKind = "DELETE"
)

// PendingWrite is one buffered mutation. Item holds the full row image
// for an insert and only the key attributes for a delete. Writes to
// the same key are not de-duplicated; the remote store applies them in
// arrival order and the last one wins.
type PendingWrite struct {
	Table string
	Kind  WriteKind
	Item  types.Item
}

// DrainResult summarizes a commit replay.
type DrainResult struct {
	// Total is how many writes the transaction buffered.
	Total int
	// Failed is how many of them did not reach the remote store.
	Failed int
}

// Buffer holds the pending writes of one relational transaction. A
// buffer is exclusively owned by its transaction context and is never
// mutated concurrently; buffers of independent transactions drain
// concurrently with each other.
//
// Past spillThreshold in-memory writes the buffer moves its contents
// to a journal file and keeps only the tail in memory, so bulk-load
// transactions do not grow without bound.
type Buffer struct {
	txn            string
	state          State
	pending        []PendingWrite
	journal        *journal
	journalDir     string
	spillThreshold int
}

// NewBuffer returns an empty buffer for the transaction. A
// spillThreshold below one disables journal spill.
func NewBuffer(txn, journalDir string, spillThreshold int) *Buffer {
	return &Buffer{
		txn:            txn,
		state:          StateEmpty,
		journalDir:     journalDir,
		spillThreshold: spillThreshold,
	}
}

// State reports the buffer's lifecycle phase.
func (b *Buffer) State() State { return b.state }

// Len reports how many writes the buffer holds, journaled writes
// included.
func (b *Buffer) Len() int {
	n := len(b.pending)
	if b.journal != nil {
		n += b.journal.count
	}
	return n
}

// Add appends one write to the buffered sequence. No network call
// happens here.
func (b *Buffer) Add(w PendingWrite) error {
	switch b.state {
	case StateEmpty:
		b.state = StateAccumulating
	case StateAccumulating:
	default:
		return errors.NewWriteError(errors.CodeBufferState,
			fmt.Sprintf("transaction %s: cannot buffer a write in state %s", b.txn, b.state), nil)
	}
	b.pending = append(b.pending, w)
	if b.spillThreshold > 0 && len(b.pending) > b.spillThreshold {
		if err := b.spill(); err != nil {
			log.Printf("Warning: transaction %s: journal spill failed, keeping writes in memory: %v", b.txn, err)
			b.spillThreshold = 0
		}
	}
	return nil
}

// spill appends the in-memory writes to the journal and releases them.
// On a partial failure the journaled prefix is trimmed from memory so
// no write can replay twice.
func (b *Buffer) spill() error {
	if b.journal == nil {
		j, err := openJournal(b.journalDir)
		if err != nil {
			return err
		}
		b.journal = j
	}
	for i, w := range b.pending {
		if err := b.journal.append(w); err != nil {
			b.pending = append([]PendingWrite(nil), b.pending[i:]...)
			return err
		}
	}
	b.pending = nil
	return nil
}

// Drain replays the buffered writes against store in arrival order,
// journaled writes first, then the in-memory tail. Every write is
// attempted even when an earlier one fails; failures are collected
// into one WRITE_REPLAY_FAILURE error. The host engine has already
// committed by the time this runs, so a failure here is surfaced and
// logged, never rolled back. The buffer is spent once Drain returns,
// whatever the outcome.
func (b *Buffer) Drain(ctx context.Context, store remote.Store) (DrainResult, error) {
	switch b.state {
	case StateEmpty:
		b.state = StateDrained
		return DrainResult{}, nil
	case StateAccumulating:
	default:
		return DrainResult{}, errors.NewWriteError(errors.CodeBufferState,
			fmt.Sprintf("transaction %s: cannot drain a buffer in state %s", b.txn, b.state), nil)
	}
	b.state = StateDraining

	res := DrainResult{Total: b.Len()}
	var failures []map[string]interface{}
	index := 0
	cancelled := false

	apply := func(w PendingWrite) bool {
		if err := ctx.Err(); err != nil {
			skipped := res.Total - index
			log.Printf("Warning: transaction %s: commit replay cancelled with %d of %d writes unapplied: %v",
				b.txn, skipped, res.Total, err)
			failures = append(failures, map[string]interface{}{
				"index":   index,
				"skipped": skipped,
				"error":   err.Error(),
			})
			res.Failed += skipped
			cancelled = true
			return false
		}
		var err error
		switch w.Kind {
		case WriteInsert:
			err = store.PutItem(ctx, w.Table, w.Item)
		case WriteDelete:
			err = store.DeleteItem(ctx, w.Table, w.Item)
		default:
			err = fmt.Errorf("unknown write kind %q", w.Kind)
		}
		if err != nil {
			log.Printf("Warning: transaction %s: %s write %d to table %s failed: %v",
				b.txn, w.Kind, index, w.Table, err)
			doc, _ := w.Item.DocumentJSON()
			failures = append(failures, map[string]interface{}{
				"index": index,
				"table": w.Table,
				"kind":  string(w.Kind),
				"item":  doc,
				"error": err.Error(),
			})
			res.Failed++
		}
		index++
		return true
	}

	if b.journal != nil {
		replayed, err := b.journal.replay(apply)
		if err != nil {
			lost := b.journal.count - replayed
			log.Printf("Warning: transaction %s: write journal unreadable after %d frames, %d writes lost: %v",
				b.txn, replayed, lost, err)
			failures = append(failures, map[string]interface{}{
				"frame": replayed,
				"lost":  lost,
				"error": err.Error(),
			})
			res.Failed += lost
			index += lost
		}
	}
	if !cancelled {
		for _, w := range b.pending {
			if !apply(w) {
				break
			}
		}
	}

	b.dropJournal()
	b.pending = nil
	b.state = StateDrained

	if res.Failed == 0 {
		return res, nil
	}
	err := errors.NewWriteError(errors.CodeWriteReplayFailure,
		fmt.Sprintf("transaction %s: %d of %d buffered writes failed during commit replay", b.txn, res.Failed, res.Total),
		nil).WithDetails(map[string]interface{}{"failures": failures})
	return res, err
}

// Discard drops every buffered write without contacting the remote
// store.
func (b *Buffer) Discard() error {
	switch b.state {
	case StateEmpty, StateAccumulating:
		b.dropJournal()
		b.pending = nil
		b.state = StateDiscarded
		return nil
	default:
		return errors.NewWriteError(errors.CodeBufferState,
			fmt.Sprintf("transaction %s: cannot discard a buffer in state %s", b.txn, b.state), nil)
	}
}

func (b *Buffer) dropJournal() {
	if b.journal == nil {
		return
	}
	b.journal.drop()
	b.journal = nil
}
