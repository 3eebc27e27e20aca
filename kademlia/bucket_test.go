package kademlia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kadnode/kademlia"
)

func mustRandomNode(t *testing.T) kademlia.Node {
	t.Helper()
	id, err := kademlia.NewRandomId()
	require.NoError(t, err)
	return kademlia.Node{Id: id}
}

func TestBucketInsertUnderCapacity(t *testing.T) {
	b := kademlia.NewBucket()
	for i := 0; i < kademlia.K; i++ {
		out := b.Insert(mustRandomNode(t))
		require.True(t, out.Inserted)
	}
	assert.Equal(t, kademlia.K, b.Len())
}

func TestBucketInsertOverCapacityAsksProbe(t *testing.T) {
	b := kademlia.NewBucket()
	var oldest kademlia.Node
	for i := 0; i < kademlia.K; i++ {
		n := mustRandomNode(t)
		if i == 0 {
			oldest = n
		}
		out := b.Insert(n)
		require.True(t, out.Inserted)
	}

	extra := mustRandomNode(t)
	out := b.Insert(extra)
	require.False(t, out.Inserted)
	assert.True(t, out.ProbeOldest.Equal(oldest))
	assert.Equal(t, kademlia.K, b.Len())
}

func TestBucketRemovePromotesWaiting(t *testing.T) {
	b := kademlia.NewBucket()
	var oldest kademlia.Node
	for i := 0; i < kademlia.K; i++ {
		n := mustRandomNode(t)
		if i == 0 {
			oldest = n
		}
		b.Insert(n)
	}

	extra := mustRandomNode(t)
	out := b.Insert(extra)
	require.False(t, out.Inserted)

	b.Remove(oldest.Id)
	assert.Equal(t, kademlia.K, b.Len())

	active := b.Active()
	found := false
	for _, n := range active {
		if n.Equal(extra) {
			found = true
		}
		assert.False(t, n.Equal(oldest))
	}
	assert.True(t, found, "promoted waiting entry should now be active")
}

func TestBucketInsertExistingMovesToBack(t *testing.T) {
	b := kademlia.NewBucket()
	first := mustRandomNode(t)
	second := mustRandomNode(t)
	b.Insert(first)
	b.Insert(second)
	b.Insert(first)

	active := b.Active()
	require.Len(t, active, 2)
	assert.True(t, active[len(active)-1].Equal(first))
}

func TestBucketKClosestOrdering(t *testing.T) {
	b := kademlia.NewBucket()
	for i := 0; i < 5; i++ {
		b.Insert(mustRandomNode(t))
	}
	target, err := kademlia.NewRandomId()
	require.NoError(t, err)

	closest := b.KClosest(target, 3, nil)
	require.Len(t, closest, 3)
	for i := 1; i < len(closest); i++ {
		prev := closest[i-1].Id.Distance(target)
		cur := closest[i].Id.Distance(target)
		assert.True(t, prev.Less(cur) || prev == cur)
	}
}
