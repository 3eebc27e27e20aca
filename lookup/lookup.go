// Package lookup implements the iterative find-closest-nodes procedure that
// backs both the operator's Store and Get requests: a shortlist of at most K
// candidates is driven toward convergence by outbound FindNode/FindValue
// RPCs, replacing shortlist entries with closer peers as responses arrive.
package lookup

import (
	"sort"

	"kadnode/kademlia"
	"kadnode/transaction"
)

// Status tracks a shortlist candidate's place in the round-trip: never
// contacted, awaiting a reply, or already replied.
type Status int

const (
	StatusEmpty Status = iota
	StatusStarted
	StatusFinished
)

// Intention selects which RPC the engine issues to newly discovered peers,
// and what happens at termination.
type Intention int

const (
	IntentionStore Intention = iota
	IntentionGet
)

type candidate struct {
	Node   kademlia.Node
	Status Status
}

// Transport is everything the lookup engine needs from the event loop to
// issue RPCs. The engine never touches a socket directly.
type Transport interface {
	SendFindNode(tx uint64, to kademlia.Node, target kademlia.Id) error
	SendFindValue(tx uint64, to kademlia.Node, key string) error
	SendStore(to kademlia.Node, key, value string) error
}

// Engine drives one iterative lookup to completion. At most one Engine is
// active at a time per node (see the concurrency bound in the event loop).
type Engine struct {
	Intention Intention
	Target    kademlia.Id
	Key       string
	Value     string // meaningful only for IntentionStore

	shortlist []candidate
	txTable   *transaction.Table
	finalK    bool
	done      bool

	resultFound bool
	resultValue string
}

// New starts a lookup with the given initial candidates (typically
// routing.KClosest(target, K)). The caller must call Start to issue the
// first RPC.
func New(intention Intention, target kademlia.Id, key, value string, initial []kademlia.Node) *Engine {
	e := &Engine{
		Intention: intention,
		Target:    target,
		Key:       key,
		Value:     value,
		txTable:   transaction.New(),
	}
	for _, n := range initial {
		e.addNode(n)
	}
	return e
}

// Done reports whether the lookup has terminated.
func (e *Engine) Done() bool {
	return e.done
}

// Result returns the value found for a Get lookup, and whether one was
// found. Meaningless before Done() or for a Store lookup.
func (e *Engine) Result() (string, bool) {
	return e.resultValue, e.resultFound
}

// Start issues the lookup's first RPC to the closest empty candidate, or
// terminates immediately if the shortlist is empty.
func (e *Engine) Start(t Transport, newTx func() uint64) error {
	if len(e.shortlist) == 0 {
		e.terminate(t)
		return nil
	}
	if idx, ok := e.closestEmpty(); ok {
		return e.dispatchTo(idx, t, newTx)
	}
	return nil
}

// HandleNodes processes a FindNodeResp or FindValueNodes reply from
// responder carrying tx. Unsolicited or stale replies (tx not outstanding)
// are silently ignored, matching the core's protocol-anomaly policy.
func (e *Engine) HandleNodes(tx uint64, responder kademlia.Id, nodes []kademlia.Node, t Transport, newTx func() uint64) error {
	if e.done || !e.txTable.Contains(tx) {
		return nil
	}
	e.txTable.Remove(tx)

	added := false
	for _, n := range nodes {
		if e.addNode(n) {
			added = true
		}
	}
	e.markFinished(responder)
	return e.afterResponse(added, t, newTx)
}

// HandleValue processes a FindValueResp reply. If tx is outstanding, the
// lookup terminates successfully with value; the bool result reports
// whether the reply was applied.
func (e *Engine) HandleValue(tx uint64, value string) bool {
	if e.done || !e.txTable.Contains(tx) {
		return false
	}
	e.txTable.Remove(tx)
	e.done = true
	e.resultFound = true
	e.resultValue = value
	return true
}

// Sweep reclaims any RPC that has gone unanswered past its deadline,
// dropping the corresponding peer from the shortlist entirely, then
// continues the lookup. Call once per outer-loop tick.
func (e *Engine) Sweep(t Transport, newTx func() uint64) error {
	if e.done {
		return nil
	}
	stale := e.txTable.SweepStale(nil)
	for _, id := range stale {
		e.removeFromShortlist(id)
	}

	if e.allFinished() {
		e.terminate(t)
		return nil
	}
	if !e.finalK {
		if idx, ok := e.closestEmpty(); ok {
			return e.dispatchTo(idx, t, newTx)
		}
	}
	return nil
}

func (e *Engine) afterResponse(added bool, t Transport, newTx func() uint64) error {
	if added {
		if idx, ok := e.closestEmpty(); ok {
			return e.dispatchTo(idx, t, newTx)
		}
		return nil
	}
	if !e.finalK {
		e.finalK = true
		return e.fanOutEmpty(t, newTx)
	}
	if e.allFinished() {
		e.terminate(t)
	}
	return nil
}

func (e *Engine) dispatchTo(idx int, t Transport, newTx func() uint64) error {
	tx := newTx()
	peer := e.shortlist[idx].Node
	e.txTable.Insert(tx, peer.Id)
	e.shortlist[idx].Status = StatusStarted

	switch e.Intention {
	case IntentionStore:
		return t.SendFindNode(tx, peer, e.Target)
	default:
		return t.SendFindValue(tx, peer, e.Key)
	}
}

func (e *Engine) fanOutEmpty(t Transport, newTx func() uint64) error {
	var firstErr error
	for i := range e.shortlist {
		if e.shortlist[i].Status != StatusEmpty {
			continue
		}
		if err := e.dispatchTo(i, t, newTx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) terminate(t Transport) {
	e.done = true
	switch e.Intention {
	case IntentionStore:
		for _, c := range e.shortlist {
			t.SendStore(c.Node, e.Key, e.Value)
		}
	default:
		// resultFound stays false: the value is absent.
	}
}

func (e *Engine) closestEmpty() (int, bool) {
	for i := range e.shortlist {
		if e.shortlist[i].Status == StatusEmpty {
			return i, true
		}
	}
	return 0, false
}

func (e *Engine) markFinished(id kademlia.Id) {
	for i := range e.shortlist {
		if e.shortlist[i].Node.Id.Equal(id) {
			e.shortlist[i].Status = StatusFinished
			return
		}
	}
}

func (e *Engine) allFinished() bool {
	for _, c := range e.shortlist {
		if c.Status != StatusFinished {
			return false
		}
	}
	return true
}

func (e *Engine) removeFromShortlist(id kademlia.Id) {
	for i, c := range e.shortlist {
		if c.Node.Id.Equal(id) {
			e.shortlist = append(e.shortlist[:i], e.shortlist[i+1:]...)
			return
		}
	}
}

// addNode binary-search-inserts n into the shortlist by ascending distance
// to the target. Duplicates by id are rejected; entries beyond K are
// dropped from the far end. Reports whether n was newly added.
func (e *Engine) addNode(n kademlia.Node) bool {
	for _, c := range e.shortlist {
		if c.Node.Id.Equal(n.Id) {
			return false
		}
	}

	d := n.Id.Distance(e.Target)
	idx := sort.Search(len(e.shortlist), func(i int) bool {
		return !e.shortlist[i].Node.Id.Distance(e.Target).Less(d)
	})

	if idx == len(e.shortlist) && len(e.shortlist) >= kademlia.K {
		return false
	}

	e.shortlist = append(e.shortlist, candidate{})
	copy(e.shortlist[idx+1:], e.shortlist[idx:])
	e.shortlist[idx] = candidate{Node: n, Status: StatusEmpty}

	if len(e.shortlist) > kademlia.K {
		e.shortlist = e.shortlist[:kademlia.K]
	}
	return true
}
