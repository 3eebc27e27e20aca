package kademlia

import "sort"

// NumBuckets is the width of the routing table: one bucket per possible
// leading-zero count of a 128-bit XOR distance.
const NumBuckets = IdLength * 8

// RoutingTable holds 128 k-buckets indexed by the number of leading zero
// bits in the XOR distance from the local node's id. Bucket i holds peers
// whose distance from local has exactly i leading zero bits. The local node
// is never itself a member of any bucket.
type RoutingTable struct {
	local   Node
	buckets [NumBuckets]*Bucket
}

// NewRoutingTable returns a routing table centered on local.
func NewRoutingTable(local Node) *RoutingTable {
	rt := &RoutingTable{local: local}
	for i := range rt.buckets {
		rt.buckets[i] = NewBucket()
	}
	return rt
}

// Local returns the node this table is centered on.
func (rt *RoutingTable) Local() Node {
	return rt.local
}

func (rt *RoutingTable) bucketIndex(id Id) int {
	return rt.local.Id.Distance(id).LeadingZeros()
}

// Insert inserts peer into the bucket selected by its distance from local.
// Inserting the local node itself is a no-op that reports success, per the
// invariant that a node never appears in its own table.
func (rt *RoutingTable) Insert(peer Node) InsertOutcome {
	if peer.Id.Equal(rt.local.Id) {
		return InsertOutcome{Inserted: true}
	}
	idx := rt.bucketIndex(peer.Id)
	return rt.buckets[idx].Insert(peer)
}

// Remove deletes the entry with the given id from its bucket. No-op for the
// local id or an id not currently held.
func (rt *RoutingTable) Remove(id Id) {
	if id.Equal(rt.local.Id) {
		return
	}
	rt.buckets[rt.bucketIndex(id)].Remove(id)
}

// KClosest returns up to k peers known to this table, ordered by ascending
// XOR distance to target, including the local node if it is among the
// closest. It exploits the identity
//
//	distance(peer, target) = distance(peer, local) XOR distance(target, local)
//
// and the fact that every peer in bucket i shares bit i of distance(peer,
// local): bits of d = distance(local, target) set to 1 select buckets whose
// peers are strictly closer to target than local is; bits set to 0 select
// buckets strictly farther. See spec's routing table k_closest algorithm.
func (rt *RoutingTable) KClosest(target Id, k int) []Node {
	out := make([]Node, 0, k)
	d := rt.local.Id.Distance(target)
	visited := make([]bool, NumBuckets)

	for len(out) < k && !d.IsZero() {
		i := d.LeadingZeros()
		out = rt.buckets[i].KClosest(target, k-len(out), out)
		visited[i] = true
		d = clearBit(d, i)
	}

	if len(out) < k {
		out = append(out, rt.local)
	}

	if len(out) < k {
		for i := NumBuckets - 1; i >= 0 && len(out) < k; i-- {
			if visited[i] {
				continue
			}
			out = rt.buckets[i].KClosest(target, k-len(out), out)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Id.Distance(target).Less(out[j].Id.Distance(target))
	})
	return out
}

// BucketStat summarizes one non-empty bucket for status reporting.
type BucketStat struct {
	Index int
	Size  int
}

// Snapshot returns one BucketStat per non-empty bucket, ordered by index.
func (rt *RoutingTable) Snapshot() []BucketStat {
	var out []BucketStat
	for i, b := range rt.buckets {
		if b.Len() == 0 {
			continue
		}
		out = append(out, BucketStat{Index: i, Size: b.Len()})
	}
	return out
}

// clearBit returns id with bit index i (0 = most significant) cleared.
func clearBit(id Id, i int) Id {
	byteIdx := i / 8
	bitIdx := uint(7 - i%8)
	id[byteIdx] &^= 1 << bitIdx
	return id
}
