package server_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kadnode/kademlia"
	"kadnode/operator"
	"kadnode/server"
)

func newTestServer(t *testing.T) (*server.Server, *operator.Channel, kademlia.Id, *net.UDPAddr) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	id, err := kademlia.NewRandomId()
	require.NoError(t, err)

	local := kademlia.Node{Id: id, Addr: conn.LocalAddr().(*net.UDPAddr)}
	ch := operator.New()
	s := server.New(t.Name(), local, conn, ch)
	return s, ch, id, local.Addr
}

func TestTwoNodesLearnEachOtherOnPing(t *testing.T) {
	a, _, aID, _ := newTestServer(t)
	b, _, bID, bAddr := newTestServer(t)

	go a.Run()
	go b.Run()

	require.NoError(t, a.Bootstrap(bAddr))

	require.Eventually(t, func() bool {
		return containsId(a.RoutingTable().KClosest(bID, kademlia.K), bID) &&
			containsId(b.RoutingTable().KClosest(aID, kademlia.K), aID)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStoreThenGetRoundTrips(t *testing.T) {
	a, opA, _, aAddr := newTestServer(t)
	b, opB, bID, _ := newTestServer(t)

	go a.Run()
	go b.Run()

	require.NoError(t, b.Bootstrap(aAddr))
	require.Eventually(t, func() bool {
		return containsId(a.RoutingTable().KClosest(bID, kademlia.K), bID)
	}, 2*time.Second, 20*time.Millisecond)

	require.True(t, opA.Store("hello", "world"))

	value, found := opB.Get("hello")
	require.True(t, found)
	require.Equal(t, "world", value)
}

func TestStatusReportsBucketOccupancy(t *testing.T) {
	a, opA, _, aAddr := newTestServer(t)
	b, _, bID, _ := newTestServer(t)

	go a.Run()
	go b.Run()

	require.NoError(t, b.Bootstrap(aAddr))
	require.Eventually(t, func() bool {
		return containsId(a.RoutingTable().KClosest(bID, kademlia.K), bID)
	}, 2*time.Second, 20*time.Millisecond)

	buckets := opA.Status()
	require.NotEmpty(t, buckets)
}

func containsId(nodes []kademlia.Node, id kademlia.Id) bool {
	for _, n := range nodes {
		if n.Id.Equal(id) {
			return true
		}
	}
	return false
}
