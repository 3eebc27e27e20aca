// Package transaction tracks outstanding RPCs by transaction id so replies
// can be matched to the request that caused them, and reclaims requests that
// never got an answer.
package transaction

import (
	"time"

	"kadnode/kademlia"
)

// Deadline is the time-to-live granted to every outstanding transaction.
const Deadline = 5 * time.Second

// entry records when an outstanding transaction expires and who it is
// waiting on.
type entry struct {
	deadline time.Time
	remoteId kademlia.Id
}

// Table is a map of in-flight transaction ids to their deadlines. It is not
// safe for concurrent use: every Table in this codebase is owned by a single
// event loop goroutine.
type Table struct {
	pending map[uint64]entry
}

// New returns an empty transaction table.
func New() *Table {
	return &Table{pending: make(map[uint64]entry)}
}

// Insert records a new outstanding transaction for remoteId, expiring
// Deadline from now.
func (t *Table) Insert(tx uint64, remoteId kademlia.Id) {
	t.pending[tx] = entry{deadline: time.Now().Add(Deadline), remoteId: remoteId}
}

// Contains reports whether tx is still outstanding.
func (t *Table) Contains(tx uint64) bool {
	_, ok := t.pending[tx]
	return ok
}

// Remove deletes tx from the table. No-op if absent.
func (t *Table) Remove(tx uint64) {
	delete(t.pending, tx)
}

// Len reports the number of outstanding transactions.
func (t *Table) Len() int {
	return len(t.pending)
}

// SweepStale removes every transaction whose deadline has passed and
// appends the id of the peer it was waiting on to out, returning the
// extended slice. This is the only timed event in the system: call it once
// per outer-loop tick.
func (t *Table) SweepStale(out []kademlia.Id) []kademlia.Id {
	now := time.Now()
	for tx, e := range t.pending {
		if now.After(e.deadline) {
			out = append(out, e.remoteId)
			delete(t.pending, tx)
		}
	}
	return out
}
