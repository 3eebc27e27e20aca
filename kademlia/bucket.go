package kademlia

import "sort"

// K is the maximum number of peers held in a single k-bucket, and the
// target width of "k closest" queries.
const K = 20

// InsertOutcome reports the result of a bucket insert: either the peer was
// placed directly, or the bucket was full and the caller owes it exactly one
// follow-up (see Bucket.Insert).
type InsertOutcome struct {
	Inserted    bool
	ProbeOldest Node // valid iff !Inserted
}

// Bucket is a fixed-capacity, ordered container of peer records:
// least-recently-seen at the front of active, most-recently-seen at the
// back. Peers that arrive while active is full wait on a stack of
// replacements while the bucket's oldest entry is probed for liveness.
//
// A bucket never learns the network state by itself — it only exposes the
// Inserted/ProbeOldest contract; the caller (the routing table, driven by
// the event loop) is responsible for actually pinging the oldest entry and
// reporting back with Insert or Remove.
type Bucket struct {
	active  []Node
	waiting []Node
}

// NewBucket returns an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{}
}

// Len returns the number of active peers currently held.
func (b *Bucket) Len() int {
	return len(b.active)
}

// Active returns the bucket's active peers, oldest first. The returned
// slice is owned by the caller; the bucket's internal slice is not aliased.
func (b *Bucket) Active() []Node {
	out := make([]Node, len(b.active))
	copy(out, b.active)
	return out
}

// Insert places peer into the bucket, or asks the caller to probe the
// oldest entry when full.
//
// If peer's id is already present in active, it is removed first. Then: if
// active has room, peer is appended to the back and Inserted is reported.
// Otherwise peer is pushed onto the waiting stack and ProbeOldest(front of
// active) is reported — the caller owes exactly one follow-up call: Insert
// again with the probed peer if the probe succeeds (moving it to the back),
// or Remove(probed.Id) if the probe fails. A peer already on the waiting
// stack is moved to its top rather than pushed twice.
func (b *Bucket) Insert(peer Node) InsertOutcome {
	for i, existing := range b.active {
		if existing.Id.Equal(peer.Id) {
			b.active = append(b.active[:i], b.active[i+1:]...)
			break
		}
	}

	if len(b.active) < K {
		b.active = append(b.active, peer)
		return InsertOutcome{Inserted: true}
	}

	for i, w := range b.waiting {
		if w.Id.Equal(peer.Id) {
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			break
		}
	}
	b.waiting = append(b.waiting, peer)
	return InsertOutcome{Inserted: false, ProbeOldest: b.active[0]}
}

// Remove deletes the entry with the given id from active, if present, then
// promotes the top of the waiting stack (if any) to the back of active.
// No-op if id is absent.
func (b *Bucket) Remove(id Id) {
	for i, existing := range b.active {
		if existing.Id.Equal(id) {
			b.active = append(b.active[:i], b.active[i+1:]...)
			if len(b.waiting) > 0 {
				promoted := b.waiting[len(b.waiting)-1]
				b.waiting = b.waiting[:len(b.waiting)-1]
				b.active = append(b.active, promoted)
			}
			return
		}
	}
}

// KClosest appends up to min(k, Len()) of this bucket's peers to out,
// ordered by ascending XOR distance to target, and returns the extended
// slice.
func (b *Bucket) KClosest(target Id, k int, out []Node) []Node {
	cands := make([]Node, len(b.active))
	copy(cands, b.active)
	sort.Slice(cands, func(i, j int) bool {
		di := cands[i].Id.Distance(target)
		dj := cands[j].Id.Distance(target)
		return di.Less(dj)
	})
	if k > len(cands) {
		k = len(cands)
	}
	return append(out, cands[:k]...)
}
