// Package operator defines the two typed, point-to-point channels that
// connect the event loop to its local front end (the CLI): commands flow
// loop-ward on ToServer, replies flow back on FromServer. No state is
// shared between the two sides except through these channels.
package operator

import "kadnode/kademlia"

// ToServer is a command issued by the operator.
type ToServer struct {
	Store  *StoreCmd
	Get    *GetCmd
	Status *StatusCmd
}

// StoreCmd asks the node to make key/value available under the DHT.
type StoreCmd struct {
	Key   string
	Value string
}

// GetCmd asks the node to resolve key.
type GetCmd struct {
	Key string
}

// StatusCmd asks the loop for a snapshot of its own routing-table
// occupancy. Routing state is owned by the loop goroutine, so this must
// go through the channel rather than being read directly.
type StatusCmd struct{}

// FromServer is the loop's reply to exactly one prior ToServer command, in
// the order the commands were received.
type FromServer struct {
	StoreAck bool
	GetValue string
	GetFound bool
	Buckets  []kademlia.BucketStat
}

// Channel is the point-to-point pair linking operator and event loop.
type Channel struct {
	ToServer   chan ToServer
	FromServer chan FromServer
}

// New returns a channel pair with a small buffer, matching the "at most one
// command in flight" concurrency bound of the core loop.
func New() *Channel {
	return &Channel{
		ToServer:   make(chan ToServer, 1),
		FromServer: make(chan FromServer, 1),
	}
}

// Store sends a Store command and blocks for its acknowledgement.
func (c *Channel) Store(key, value string) bool {
	c.ToServer <- ToServer{Store: &StoreCmd{Key: key, Value: value}}
	reply := <-c.FromServer
	return reply.StoreAck
}

// Get sends a Get command and blocks for its reply.
func (c *Channel) Get(key string) (string, bool) {
	c.ToServer <- ToServer{Get: &GetCmd{Key: key}}
	reply := <-c.FromServer
	return reply.GetValue, reply.GetFound
}

// Status sends a Status command and blocks for a routing-table snapshot.
func (c *Channel) Status() []kademlia.BucketStat {
	c.ToServer <- ToServer{Status: &StatusCmd{}}
	reply := <-c.FromServer
	return reply.Buckets
}
