// Package pubsub implements a Gossipsub-style publish/subscribe overlay: a
// randomized topic mesh combined with a recent-message cache and the
// control-plane messages (GRAFT, PRUNE, IHAVE, IWANT, SUBSCRIBE,
// UNSUBSCRIBE) that maintain it.
//
// The design is modeled directly on github.com/libp2p/go-libp2p-pubsub's
// GossipSubRouter/PubSub pair: a single serialized event loop owns all
// mesh/mcache/fanout/peer-view state, driven by typed channels, with
// per-peer outbound queues applying back-pressure by dropping frames when
// full (DESIGN.md has the full grounding ledger).
package pubsub

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/meshsub/go-meshsub/pb"
)

var log = logging.Logger("meshsub")

// PeerEventKind distinguishes connect/disconnect notifications from the
// peer event source collaborator.
type PeerEventKind int

const (
	PeerConnected PeerEventKind = iota
	PeerDisconnected
)

// PeerEvent is emitted by the PeerEvents collaborator.
type PeerEvent struct {
	Kind PeerEventKind
	Peer PeerID
}

// Transport is the per-peer framed-RPC send surface. Supplied by the
// embedding application; out of scope for this package (spec.md §1).
type Transport interface {
	Send(ctx context.Context, p PeerID, rpc *pb.RPC) error
}

// PeerEvents is the connection-lifecycle event source collaborator.
type PeerEvents interface {
	Events() <-chan PeerEvent
}

// Codec is the wire serializer/deserializer collaborator, treated as
// opaque. pb.GossipCodec is the concrete implementation used by this
// package's own tests.
type Codec interface {
	Encode(*pb.RPC) ([]byte, error)
	Decode([]byte) (*pb.RPC, error)
}

// Clock is the wall-clock collaborator, abstracted so tests can control
// fanout TTL expiry deterministically.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock with the system wall clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DeliverFunc is invoked once per locally-subscribed incoming message, for
// every topic in m.Topics the local node subscribes to.
type DeliverFunc func(topic TopicHash, msg *GMessage)

// Config bundles the collaborators and tuning knobs a Node is built from.
type Config struct {
	ID        PeerID
	Transport Transport
	Clock     Clock
	Rand      *mrand.Rand
	Deliver   DeliverFunc

	TargetDegree  int
	LowWatermark  int
	HighWatermark int
	HistLen       int
	HistoryGossip int
	SeenCacheSize int
	FanoutTTL     time.Duration
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Rand == nil {
		c.Rand = NewCryptoSeededRand()
	}
	if c.Deliver == nil {
		c.Deliver = func(TopicHash, *GMessage) {}
	}
	if c.TargetDegree == 0 {
		c.TargetDegree = TargetMeshDegree
	}
	if c.LowWatermark == 0 {
		c.LowWatermark = LowWatermark
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = HighWatermark
	}
	if c.HistLen == 0 {
		c.HistLen = MsgHistLen
	}
	if c.HistoryGossip == 0 {
		c.HistoryGossip = HistoryGossip
	}
	if c.SeenCacheSize == 0 {
		c.SeenCacheSize = SeenMsgsCache
	}
	if c.FanoutTTL == 0 {
		c.FanoutTTL = FanoutTTL
	}
}

// Node is the mesh management and gossip dissemination engine: the stateful
// component that decides which peers forward which topics, which messages
// are remembered for how long, which messages are advertised to whom, and
// how subscription churn is absorbed. It is a single owned object with
// explicit Start/Stop (spec.md §9: "no global state").
type Node struct {
	cfg Config

	mesh     *Mesh
	fanout   *Fanout
	peerView *PeerView
	mcache   *MCache
	seen     *SeenSet

	mySubs         map[TopicHash]struct{}
	connectedPeers map[PeerID]struct{}
	seqCounter     uint64

	// per-peer pending outbound control/gossip, coalesced into one RPC per
	// destination peer per heartbeat tick where possible (spec.md §4.7).
	pendingGraft    map[PeerID][]TopicHash
	pendingPrune    map[PeerID][]TopicHash
	pendingIHave    map[PeerID][]*pb.ControlIHave
	pendingIWant    map[PeerID][]string
	pendingMessages map[PeerID][]*pb.Message
	pendingSubs     map[PeerID][]*pb.RPC_SubOpts

	heartbeatTicks uint64

	incoming    chan incomingRPC
	publishReqs chan publishReq
	subReqs     chan subReq
	peerEvents  chan PeerEvent
	eval        chan func()
	snapshotReq chan chan Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type incomingRPC struct {
	from  PeerID
	frame *pb.RPC
}

type publishReq struct {
	topics []TopicHash
	data   []byte
	resp   chan error
}

type subReq struct {
	topic  TopicHash
	action SubscriptionAction
}

// NewNode constructs a Node from cfg. Call Start to begin its event loop.
func NewNode(cfg Config) *Node {
	cfg.setDefaults()
	return &Node{
		cfg:             cfg,
		mesh:            NewMesh(),
		fanout:          NewFanout(),
		peerView:        NewPeerView(),
		mcache:          NewMCache(cfg.HistLen, cfg.HistoryGossip),
		seen:            NewSeenSet(cfg.SeenCacheSize),
		mySubs:          make(map[TopicHash]struct{}),
		connectedPeers:  make(map[PeerID]struct{}),
		pendingGraft:    make(map[PeerID][]TopicHash),
		pendingPrune:    make(map[PeerID][]TopicHash),
		pendingIHave:    make(map[PeerID][]*pb.ControlIHave),
		pendingIWant:    make(map[PeerID][]string),
		pendingMessages: make(map[PeerID][]*pb.Message),
		pendingSubs:     make(map[PeerID][]*pb.RPC_SubOpts),
		incoming:        make(chan incomingRPC, 32),
		publishReqs:     make(chan publishReq),
		subReqs:         make(chan subReq),
		peerEvents:      make(chan PeerEvent, 32),
		eval:            make(chan func()),
		snapshotReq:     make(chan chan Snapshot),
	}
}

// Start begins the node's serialized event loop and heartbeat timer.
func (n *Node) Start(ctx context.Context) {
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(2)
	go n.processLoop()
	go n.heartbeatTimer()
}

// Stop cancels the heartbeat timer and event loop, draining cleanly.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// processLoop is the single serialized event queue: all Mesh/MCache/Fanout/
// PeerView state is mutated only here (spec.md §5). Modeled on the
// teacher's PubSub.processLoop in pubsub.go.
func (n *Node) processLoop() {
	defer n.wg.Done()
	for {
		select {
		case rpc := <-n.incoming:
			n.handleIncomingRPC(rpc.from, rpc.frame)

		case req := <-n.publishReqs:
			req.resp <- n.doPublish(req.topics, req.data)

		case req := <-n.subReqs:
			n.handleSubReq(req)

		case ev := <-n.peerEvents:
			n.handlePeerEvent(ev)

		case thunk := <-n.eval:
			thunk()

		case respCh := <-n.snapshotReq:
			respCh <- n.snapshot()

		case <-n.ctx.Done():
			return
		}
	}
}

// DeliverRPC is called by the transport layer when a framed RPC arrives
// from peer `from`. It enqueues onto the serialized event queue; callers
// must not mutate frame afterwards.
func (n *Node) DeliverRPC(from PeerID, frame *pb.RPC) {
	select {
	case n.incoming <- incomingRPC{from: from, frame: frame}:
	case <-n.ctx.Done():
	}
}

// NotifyPeerEvent is called by the PeerEvents collaborator on connect/disconnect.
func (n *Node) NotifyPeerEvent(ev PeerEvent) {
	select {
	case n.peerEvents <- ev:
	case <-n.ctx.Done():
	}
}

func (n *Node) handlePeerEvent(ev PeerEvent) {
	switch ev.Kind {
	case PeerConnected:
		n.connectedPeers[ev.Peer] = struct{}{}
		// Announce our full current subscription state to the newly
		// connected peer, the way the teacher's PubSub greets a new stream
		// with its live topic list in pubsub.go.
		for topic := range n.mySubs {
			n.queueSubAnnounce(ev.Peer, topic, true)
		}
		n.flushPeer(ev.Peer)
	case PeerDisconnected:
		n.onDisconnect(ev.Peer)
	}
}

// onDisconnect removes peer from Mesh, Fanout, and PeerView (spec.md §4.5,
// invariant 6). Grounded on the teacher's gs.RemovePeer in gossipsub.go.
func (n *Node) onDisconnect(p PeerID) {
	delete(n.connectedPeers, p)
	n.mesh.RemovePeerEverywhere(p)
	n.fanout.RemovePeerEverywhere(p)
	n.peerView.OnDisconnect(p)
	delete(n.pendingGraft, p)
	delete(n.pendingPrune, p)
	delete(n.pendingIHave, p)
	delete(n.pendingIWant, p)
	delete(n.pendingMessages, p)
	delete(n.pendingSubs, p)
}

func (n *Node) handleSubReq(req subReq) {
	switch req.action {
	case ActionSubscribe:
		if _, ok := n.mySubs[req.topic]; ok {
			return
		}
		n.mySubs[req.topic] = struct{}{}
		n.broadcastSubscription(req.topic, true)
		n.joinTopic(req.topic)
	case ActionUnsubscribe:
		if _, ok := n.mySubs[req.topic]; !ok {
			return
		}
		delete(n.mySubs, req.topic)
		n.broadcastSubscription(req.topic, false)
		n.leaveTopic(req.topic)
	}
	n.flushAll()
}

// broadcastSubscription announces a local (un)subscription to every
// connected peer, mirroring the teacher's PubSub.announce in pubsub.go.
func (n *Node) broadcastSubscription(topic TopicHash, subscribe bool) {
	for p := range n.connectedPeers {
		n.queueSubAnnounce(p, topic, subscribe)
	}
}

// joinTopic establishes an initial mesh for topic, sampling from known
// subscribers, and GRAFTs each into it. Mirrors gossipsub.go's Join().
func (n *Node) joinTopic(topic TopicHash) {
	if n.mesh.Has(topic) {
		return
	}

	candidates := n.peerView.Subscribers(topic)
	picked := samplePeers(n.cfg.Rand, candidates, n.cfg.TargetDegree)
	n.mesh.Insert(topic, nil)
	for _, p := range picked {
		_ = n.mesh.AddPeer(topic, p)
		n.queueGraft(p, topic)
	}
}

// leaveTopic tears down the mesh for topic, PRUNEing each member.
func (n *Node) leaveTopic(topic TopicHash) {
	peers := n.mesh.PeerList(topic)
	n.mesh.RemoveTopic(topic)
	for _, p := range peers {
		n.queuePrune(p, topic)
	}
}

// Subscribe marks the local node as subscribed to topic.
func (n *Node) Subscribe(topic TopicHash) {
	select {
	case n.subReqs <- subReq{topic: topic, action: ActionSubscribe}:
	case <-n.ctx.Done():
	}
}

// Unsubscribe marks the local node as no longer subscribed to topic.
func (n *Node) Unsubscribe(topic TopicHash) {
	select {
	case n.subReqs <- subReq{topic: topic, action: ActionUnsubscribe}:
	case <-n.ctx.Done():
	}
}

// Publish constructs a GMessage for topics, delivers it locally if
// subscribed, and forwards it to mesh/fanout peers (spec.md §4.7 "Publish
// path"). Returns ErrMessageTooLarge if len(data) > MaxMessageSize.
func (n *Node) Publish(topics []TopicHash, data []byte) error {
	resp := make(chan error, 1)
	select {
	case n.publishReqs <- publishReq{topics: topics, data: data, resp: resp}:
	case <-n.ctx.Done():
		return n.ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-n.ctx.Done():
		return n.ctx.Err()
	}
}

func (n *Node) doPublish(topics []TopicHash, data []byte) error {
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	n.seqCounter++
	seqNo := fmt.Sprintf("%d", n.seqCounter)
	now := n.cfg.Clock.Now()

	msg, err := NewGMessage(n.cfg.ID, data, []byte(seqNo), topics, now)
	if err != nil {
		return err
	}

	n.seen.Observe(msg.Hash())
	n.mcache.Put(msg)

	for _, t := range topics {
		if _, ok := n.mySubs[t]; ok {
			n.cfg.Deliver(t, msg)
		}
	}

	wire := msg.ToWire()
	for _, t := range topics {
		if !n.mesh.Has(t) && !n.fanout.Has(t) {
			candidates := n.peerView.Subscribers(t)
			picked := samplePeers(n.cfg.Rand, candidates, n.cfg.TargetDegree)
			if len(picked) > 0 {
				n.fanout.Set(t, picked, now)
			}
		} else if n.fanout.Has(t) {
			n.fanout.Touch(t, now)
		}
		n.forwardToTopic(t, wire, "", "")
	}

	n.flushAll()
	return nil
}

// forwardToTopic queues wire for every peer in mesh(t) ∪ fanout(t),
// excluding excludePeer and the message's own source.
func (n *Node) forwardToTopic(t TopicHash, wire *pb.Message, excludePeer PeerID, source PeerID) {
	dests := make(map[PeerID]struct{})
	for _, p := range n.mesh.PeerList(t) {
		dests[p] = struct{}{}
	}
	for p := range n.fanout.PeersOf(t) {
		dests[p] = struct{}{}
	}
	delete(dests, excludePeer)
	delete(dests, source)
	for p := range dests {
		n.queueMessage(p, wire)
	}
}

// Snapshot is the diagnostic inspection interface (spec.md §6).
type Snapshot struct {
	Mesh     map[TopicHash][]PeerID
	Fanout   map[TopicHash][]PeerID
	PeerSubs map[PeerID][]TopicHash
}

func (n *Node) snapshot() Snapshot {
	s := Snapshot{
		Mesh:     make(map[TopicHash][]PeerID),
		Fanout:   make(map[TopicHash][]PeerID),
		PeerSubs: make(map[PeerID][]TopicHash),
	}
	for _, t := range n.mesh.Topics() {
		s.Mesh[t] = n.mesh.PeerList(t)
	}
	for _, t := range n.fanout.Topics() {
		s.Fanout[t] = n.fanout.PeerList(t)
	}
	for p := range n.connectedPeers {
		s.PeerSubs[p] = topicsForPeer(n.peerView, p)
	}
	return s
}

func topicsForPeer(v *PeerView, p PeerID) []TopicHash {
	var out []TopicHash
	set, ok := v.subs[p]
	if !ok {
		return out
	}
	for t := range set {
		out = append(out, t)
	}
	return out
}

// Snapshot returns a point-in-time view of mesh/fanout/peer-view state, for tests.
func (n *Node) Snapshot() Snapshot {
	resp := make(chan Snapshot, 1)
	select {
	case n.snapshotReq <- resp:
	case <-n.ctx.Done():
		return Snapshot{}
	}
	select {
	case s := <-resp:
		return s
	case <-n.ctx.Done():
		return Snapshot{}
	}
}
