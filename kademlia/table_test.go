package kademlia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kadnode/kademlia"
)

func mustRandomTable(t *testing.T) (*kademlia.RoutingTable, kademlia.Node) {
	t.Helper()
	local := mustRandomNode(t)
	return kademlia.NewRoutingTable(local), local
}

func TestRoutingTablePlacementByLeadingZeros(t *testing.T) {
	rt, local := mustRandomTable(t)
	peer := mustRandomNode(t)

	out := rt.Insert(peer)
	require.True(t, out.Inserted)

	wantIdx := local.Id.Distance(peer.Id).LeadingZeros()
	closest := rt.KClosest(peer.Id, 1)
	require.Len(t, closest, 1)
	assert.True(t, closest[0].Equal(peer))
	assert.Equal(t, []kademlia.BucketStat{{Index: wantIdx, Size: 1}}, rt.Snapshot())
}

func TestRoutingTableInsertLocalIsNoop(t *testing.T) {
	rt, local := mustRandomTable(t)
	out := rt.Insert(local)
	assert.True(t, out.Inserted)
	assert.Empty(t, rt.Snapshot())
}

func TestRoutingTableKClosestSizeBound(t *testing.T) {
	rt, _ := mustRandomTable(t)
	for i := 0; i < 50; i++ {
		rt.Insert(mustRandomNode(t))
	}

	target, err := kademlia.NewRandomId()
	require.NoError(t, err)

	closest := rt.KClosest(target, kademlia.K)
	assert.LessOrEqual(t, len(closest), kademlia.K)
}

func TestRoutingTableKClosestIsSortedByDistance(t *testing.T) {
	rt, _ := mustRandomTable(t)
	for i := 0; i < 30; i++ {
		rt.Insert(mustRandomNode(t))
	}

	target, err := kademlia.NewRandomId()
	require.NoError(t, err)

	closest := rt.KClosest(target, kademlia.K)
	for i := 1; i < len(closest); i++ {
		prev := closest[i-1].Id.Distance(target)
		cur := closest[i].Id.Distance(target)
		assert.False(t, cur.Less(prev))
	}
}

func TestRoutingTableKClosestIsMinimalOnSmallTable(t *testing.T) {
	rt, local := mustRandomTable(t)
	peers := make([]kademlia.Node, 0, 10)
	for i := 0; i < 10; i++ {
		peers = append(peers, mustRandomNode(t))
		rt.Insert(peers[i])
	}

	target, err := kademlia.NewRandomId()
	require.NoError(t, err)

	closest := rt.KClosest(target, 5)
	require.Len(t, closest, 5)

	all := append([]kademlia.Node{local}, peers...)
	distanceTo := func(n kademlia.Node) kademlia.Id { return n.Id.Distance(target) }

	for _, candidate := range all {
		included := false
		for _, c := range closest {
			if c.Equal(candidate) {
				included = true
			}
		}
		if included {
			continue
		}
		// every excluded candidate must not be strictly closer than the
		// farthest included result
		farthest := distanceTo(closest[len(closest)-1])
		assert.False(t, distanceTo(candidate).Less(farthest),
			"excluded candidate %s is closer than an included result", candidate.Id)
	}
}

func TestRoutingTableRemove(t *testing.T) {
	rt, _ := mustRandomTable(t)
	peer := mustRandomNode(t)
	rt.Insert(peer)
	rt.Remove(peer.Id)
	assert.Empty(t, rt.Snapshot())
}
