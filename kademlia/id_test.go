package kademlia_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kadnode/kademlia"
)

func idFromUint(n uint64) kademlia.Id {
	var id kademlia.Id
	for i := 0; i < 8; i++ {
		id[kademlia.IdLength-1-i] = byte(n >> (8 * i))
	}
	return id
}

func TestDistanceMetricLaws(t *testing.T) {
	a := idFromUint(1)
	b := idFromUint(2)
	c := idFromUint(7)

	assert.Equal(t, idFromUint(3), a.Distance(b))
	assert.Equal(t, idFromUint(3), b.Distance(a))
	assert.Equal(t, kademlia.Id{}, a.Distance(a))

	// identity of indiscernibles
	assert.True(t, a.Distance(a).IsZero())
	assert.False(t, a.Distance(b).IsZero())

	// symmetry
	assert.Equal(t, a.Distance(c), c.Distance(a))
}

func TestLeadingZerosAllZero(t *testing.T) {
	var zero kademlia.Id
	assert.Equal(t, kademlia.IdLength*8, zero.LeadingZeros())
}

func TestLeadingZerosKnownValue(t *testing.T) {
	id := idFromUint(1)
	assert.Equal(t, kademlia.IdLength*8-1, id.LeadingZeros())
}

func TestIdStringRoundTrip(t *testing.T) {
	id, err := kademlia.NewRandomId()
	require.NoError(t, err)

	s := id.String()
	parsed, err := kademlia.ParseId(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestHashKeyIsDeterministic(t *testing.T) {
	a := kademlia.HashKey("hello")
	b := kademlia.HashKey("hello")
	c := kademlia.HashKey("world")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
