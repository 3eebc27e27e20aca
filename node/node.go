// Package node assembles identity, socket, and event loop into a single
// runnable DHT node, the way host.Builder assembles a full overlay peer.
package node

import (
	"fmt"
	"log"
	"net"

	"kadnode/kademlia"
	"kadnode/operator"
	"kadnode/server"
)

// Node is a fully wired DHT participant: an identity, a bound UDP socket,
// and the event loop that owns them.
type Node struct {
	id      kademlia.Id
	addr    *net.UDPAddr
	channel *operator.Channel
	srv     *server.Server
}

// ID returns this node's identifier.
func (n *Node) ID() kademlia.Id { return n.id }

// Addr returns the address this node's socket is bound to.
func (n *Node) Addr() *net.UDPAddr { return n.addr }

// AddrString renders the bound address for display, satisfying cli.Commander.
func (n *Node) AddrString() string { return n.addr.String() }

// Channel returns the operator channel used to issue Store/Get commands.
func (n *Node) Channel() *operator.Channel { return n.channel }

// RoutingTable exposes routing state for tests. The loop goroutine owns this
// state, and nothing synchronizes reads of it made while Run is active.
func (n *Node) RoutingTable() *kademlia.RoutingTable { return n.srv.RoutingTable() }

// Snapshot summarizes routing-table occupancy for the status command. It
// goes through the operator channel rather than reading routing state
// directly, since that state is owned by the loop goroutine.
func (n *Node) Snapshot() []kademlia.BucketStat { return n.channel.Status() }

// Store asks the node to make key/value available under the DHT and blocks
// for acknowledgement.
func (n *Node) Store(key, value string) bool { return n.channel.Store(key, value) }

// Get resolves key and blocks for the result.
func (n *Node) Get(key string) (string, bool) { return n.channel.Get(key) }

// Bootstrap seeds the routing table with one known peer.
func (n *Node) Bootstrap(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve bootstrap addr: %w", err)
	}
	return n.srv.Bootstrap(udpAddr)
}

// Run starts the event loop. It blocks until a socket read error terminates
// it.
func (n *Node) Run() error {
	return n.srv.Run()
}

// Builder configures a Node before it is built, mirroring the teacher's
// progressive-configuration Builder pattern.
type Builder struct {
	name       string
	listenAddr string
	id         *kademlia.Id
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Name sets the node's name, used only for log prefixes.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Listen sets the UDP address to bind, e.g. "127.0.0.1:9000".
func (b *Builder) Listen(addr string) *Builder {
	b.listenAddr = addr
	return b
}

// Id fixes the node's identifier. If not called, Build mints a random one.
func (b *Builder) Id(id kademlia.Id) *Builder {
	b.id = &id
	return b
}

// Build resolves and binds the listen address, mints an identity if none
// was given, and wires the routing table, key store, and event loop into a
// runnable Node.
func (b *Builder) Build() (*Node, error) {
	if b.listenAddr == "" {
		return nil, fmt.Errorf("node: Listen address must be set")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", b.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("node: resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("node: listen: %w", err)
	}

	var id kademlia.Id
	if b.id != nil {
		id = *b.id
	} else {
		id, err = kademlia.NewRandomId()
		if err != nil {
			return nil, fmt.Errorf("node: mint id: %w", err)
		}
	}

	local := kademlia.Node{Id: id, Addr: conn.LocalAddr().(*net.UDPAddr)}
	channel := operator.New()
	name := b.name
	if name == "" {
		name = id.String()[:8]
	}

	log.Printf("[%s] listening on %s, id=%s", name, local.Addr, id)

	return &Node{
		id:      id,
		addr:    local.Addr,
		channel: channel,
		srv:     server.New(name, local, conn, channel),
	}, nil
}
