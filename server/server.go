// Package server implements the single-threaded event loop: it owns the
// datagram socket, the routing table, the local key store, at most one
// in-flight lookup, and the keep-alive transaction table, and multiplexes
// them against a bounded-timeout receive.
package server

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log"
	"math/big"
	mrand "math/rand"
	"net"
	"time"

	"kadnode/kademlia"
	"kadnode/lookup"
	"kadnode/operator"
	"kadnode/transaction"
	"kadnode/wire"
)

// ReceiveTimeout bounds each datagram read; it is also the loop's polling
// granularity for the stale sweep and the operator channel.
const ReceiveTimeout = 400 * time.Millisecond

// Server is the node's single event-loop owner. It is not safe for
// concurrent use: apart from Bootstrap, which touches no loop-owned state,
// no method here is safe to call from another goroutine while Run is active.
type Server struct {
	name string

	local   kademlia.Node
	conn    *net.UDPConn
	routing *kademlia.RoutingTable
	store   map[string]string

	currentLookup *lookup.Engine
	keepAlives    *transaction.Table

	channel *operator.Channel

	rng *mrand.Rand
	buf []byte
}

// New constructs a Server bound to conn, centered on local. channel is the
// operator front end's side of the command/reply pair.
func New(name string, local kademlia.Node, conn *net.UDPConn, channel *operator.Channel) *Server {
	return &Server{
		name:       name,
		local:      local,
		conn:       conn,
		routing:    kademlia.NewRoutingTable(local),
		store:      make(map[string]string),
		keepAlives: transaction.New(),
		channel:    channel,
		rng:        mrand.New(mrand.NewSource(seed())),
		buf:        make([]byte, wire.MaxFrameSize),
	}
}

func seed() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return time.Now().UnixNano()
	}
	return n.Int64()
}

// RoutingTable exposes the routing table to tests. The table is owned by the
// loop goroutine; reads made while Run is active are not synchronized.
func (s *Server) RoutingTable() *kademlia.RoutingTable {
	return s.routing
}

// Bootstrap seeds the routing table with a single known peer by pinging it.
// It may be called from any goroutine: it encodes into its own buffer and
// draws its transaction id from crypto/rand, not from the loop's buffer and
// random source.
func (s *Server) Bootstrap(addr *net.UDPAddr) error {
	var txBytes [8]byte
	if _, err := rand.Read(txBytes[:]); err != nil {
		return err
	}
	buf := make([]byte, wire.HeaderSize+1)
	n, err := wire.Encode(&wire.Message{
		Header: wire.Header{NodeId: s.local.Id, Tx: binary.BigEndian.Uint64(txBytes[:])},
		Tag:    wire.TagPing,
	}, buf)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(buf[:n], addr)
	return err
}

// Run executes the event loop until a socket read error (other than the
// per-tick read timeout) forces it to stop, per the fail-fast propagation
// policy: transient socket errors are not retried. Send errors are logged
// and do not stop the loop.
func (s *Server) Run() error {
	for {
		if err := s.tick(); err != nil {
			return err
		}
	}
}

func (s *Server) tick() error {
	if err := s.receiveAndDispatch(); err != nil {
		return err
	}
	s.sweepStale()
	s.pollOperator()
	return nil
}

func (s *Server) receiveAndDispatch() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(ReceiveTimeout)); err != nil {
		return err
	}

	n, src, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}

	datagram := make([]byte, n)
	copy(datagram, s.buf[:n])

	msg, err := wire.Decode(datagram)
	if err != nil {
		log.Printf("[%s] decode error from %s: %v", s.name, src, err)
		return nil
	}

	s.dispatch(msg, src)
	return nil
}

func (s *Server) dispatch(m *wire.Message, src *net.UDPAddr) {
	peer := kademlia.Node{Id: m.Header.NodeId, Addr: src}
	out := s.routing.Insert(peer)
	if !out.Inserted {
		tx := s.newTx()
		s.keepAlives.Insert(tx, out.ProbeOldest.Id)
		if err := s.sendPing(tx, out.ProbeOldest.Addr); err != nil {
			log.Printf("[%s] keep-alive ping to %s failed: %v", s.name, out.ProbeOldest.Addr, err)
		}
	}

	switch m.Tag {
	case wire.TagPing:
		s.reply(m.Header.Tx, wire.TagPingResp, src, nil)
	case wire.TagPingResp:
		s.keepAlives.Remove(m.Header.Tx)
	case wire.TagFindNode:
		nodes := s.routing.KClosest(m.FindNodeTarget, kademlia.K)
		s.reply(m.Header.Tx, wire.TagFindNodeResp, src, nodes)
	case wire.TagFindNodeResp:
		s.feedLookupNodes(m, peer.Id)
	case wire.TagFindValue:
		s.handleFindValue(m, src)
	case wire.TagFindValueResp:
		s.feedLookupValue(m)
	case wire.TagFindValueNodes:
		s.feedLookupNodes(m, peer.Id)
	case wire.TagStore:
		s.store[m.StoreKey] = m.StoreValue
		s.reply(m.Header.Tx, wire.TagStoreResp, src, nil)
	case wire.TagStoreResp:
		s.keepAlives.Remove(m.Header.Tx)
	}
}

func (s *Server) handleFindValue(m *wire.Message, src *net.UDPAddr) {
	if value, ok := s.store[m.FindValueKey]; ok {
		s.send(&wire.Message{
			Header: wire.Header{NodeId: s.local.Id, Tx: m.Header.Tx},
			Tag:    wire.TagFindValueResp,
			Value:  value,
		}, src)
		return
	}
	nodes := s.routing.KClosest(kademlia.HashKey(m.FindValueKey), kademlia.K)
	s.reply(m.Header.Tx, wire.TagFindValueNodes, src, nodes)
}

func (s *Server) feedLookupNodes(m *wire.Message, responder kademlia.Id) {
	if s.currentLookup == nil {
		return
	}
	if err := s.currentLookup.HandleNodes(m.Header.Tx, responder, m.Nodes, s, s.newTx); err != nil {
		log.Printf("[%s] lookup dispatch error: %v", s.name, err)
	}
	s.finishLookupIfDone()
}

func (s *Server) feedLookupValue(m *wire.Message) {
	if s.currentLookup == nil {
		return
	}
	s.currentLookup.HandleValue(m.Header.Tx, m.Value)
	s.finishLookupIfDone()
}

func (s *Server) sweepStale() {
	stale := s.keepAlives.SweepStale(nil)
	for _, id := range stale {
		s.routing.Remove(id)
	}

	if s.currentLookup != nil {
		if err := s.currentLookup.Sweep(s, s.newTx); err != nil {
			log.Printf("[%s] lookup sweep error: %v", s.name, err)
		}
		s.finishLookupIfDone()
	}
}

func (s *Server) finishLookupIfDone() {
	if s.currentLookup == nil || !s.currentLookup.Done() {
		return
	}
	if s.currentLookup.Intention == lookup.IntentionGet {
		value, found := s.currentLookup.Result()
		s.channel.FromServer <- operator.FromServer{GetValue: value, GetFound: found}
	} else {
		s.channel.FromServer <- operator.FromServer{StoreAck: true}
	}
	s.currentLookup = nil
}

// pollOperator non-blockingly handles at most one operator command per
// tick. When a lookup is already active, commands are answered with the
// best local knowledge instead of queuing a second lookup.
func (s *Server) pollOperator() {
	select {
	case cmd := <-s.channel.ToServer:
		s.handleCommand(cmd)
	default:
	}
}

func (s *Server) handleCommand(cmd operator.ToServer) {
	switch {
	case cmd.Store != nil:
		s.handleStoreCommand(*cmd.Store)
	case cmd.Get != nil:
		s.handleGetCommand(*cmd.Get)
	case cmd.Status != nil:
		s.channel.FromServer <- operator.FromServer{Buckets: s.routing.Snapshot()}
	}
}

func (s *Server) handleStoreCommand(cmd operator.StoreCmd) {
	if s.currentLookup != nil {
		s.store[cmd.Key] = cmd.Value
		s.channel.FromServer <- operator.FromServer{StoreAck: true}
		return
	}

	target := kademlia.HashKey(cmd.Key)
	initial := s.routing.KClosest(target, kademlia.K)
	engine := lookup.New(lookup.IntentionStore, target, cmd.Key, cmd.Value, initial)
	s.currentLookup = engine
	if err := engine.Start(s, s.newTx); err != nil {
		log.Printf("[%s] store lookup start error: %v", s.name, err)
	}
	s.finishLookupIfDone()
}

func (s *Server) handleGetCommand(cmd operator.GetCmd) {
	if s.currentLookup != nil {
		value, found := s.store[cmd.Key]
		s.channel.FromServer <- operator.FromServer{GetValue: value, GetFound: found}
		return
	}

	target := kademlia.HashKey(cmd.Key)
	initial := s.routing.KClosest(target, kademlia.K)
	engine := lookup.New(lookup.IntentionGet, target, cmd.Key, "", initial)
	s.currentLookup = engine
	if err := engine.Start(s, s.newTx); err != nil {
		log.Printf("[%s] get lookup start error: %v", s.name, err)
	}
	s.finishLookupIfDone()
}

func (s *Server) reply(tx uint64, tag wire.Tag, to *net.UDPAddr, nodes []kademlia.Node) {
	s.send(&wire.Message{
		Header: wire.Header{NodeId: s.local.Id, Tx: tx},
		Tag:    tag,
		Nodes:  nodes,
	}, to)
}

func (s *Server) sendPing(tx uint64, to *net.UDPAddr) error {
	return s.sendOrErr(&wire.Message{
		Header: wire.Header{NodeId: s.local.Id, Tx: tx},
		Tag:    wire.TagPing,
	}, to)
}

func (s *Server) newTx() uint64 {
	return s.rng.Uint64()
}

// send encodes m into the loop's shared buffer and writes it to to,
// logging and swallowing any encode/send failure. The buffer is reused
// between receive and send: every received frame is copied out before
// decode, so reusing it here for an outbound send never races a pending
// inbound one.
func (s *Server) send(m *wire.Message, to *net.UDPAddr) {
	if err := s.sendOrErr(m, to); err != nil {
		log.Printf("[%s] send tag %d to %s: %v", s.name, m.Tag, to, err)
	}
}

func (s *Server) sendOrErr(m *wire.Message, to *net.UDPAddr) error {
	n, err := wire.Encode(m, s.buf)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(s.buf[:n], to)
	return err
}

// SendFindNode implements lookup.Transport.
func (s *Server) SendFindNode(tx uint64, to kademlia.Node, target kademlia.Id) error {
	return s.sendOrErr(&wire.Message{
		Header:         wire.Header{NodeId: s.local.Id, Tx: tx},
		Tag:            wire.TagFindNode,
		FindNodeTarget: target,
	}, to.Addr)
}

// SendFindValue implements lookup.Transport.
func (s *Server) SendFindValue(tx uint64, to kademlia.Node, key string) error {
	return s.sendOrErr(&wire.Message{
		Header:       wire.Header{NodeId: s.local.Id, Tx: tx},
		Tag:          wire.TagFindValue,
		FindValueKey: key,
	}, to.Addr)
}

// SendStore implements lookup.Transport.
func (s *Server) SendStore(to kademlia.Node, key, value string) error {
	return s.sendOrErr(&wire.Message{
		Header:     wire.Header{NodeId: s.local.Id, Tx: s.newTx()},
		Tag:        wire.TagStore,
		StoreKey:   key,
		StoreValue: value,
	}, to.Addr)
}
