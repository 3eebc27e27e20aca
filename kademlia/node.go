package kademlia

import "net"

// Node is a peer known to this DHT node: an identifier paired with the
// address used to reach it. Two Nodes compare equal iff their ids match —
// the address is informational, not part of identity, matching how
// peer.PeerID alone (not the transport address) determines node identity in
// this codebase's overlay layer.
type Node struct {
	Id   Id
	Addr *net.UDPAddr
}

// Equal reports whether two nodes share the same identifier, ignoring
// address.
func (n Node) Equal(other Node) bool {
	return n.Id.Equal(other.Id)
}
