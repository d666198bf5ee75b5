// Command meshsubd is a minimal demo harness that wires a handful of Node
// instances together over an in-memory transport and exercises subscribe/
// publish/gossip end to end on the console. It exists to make the package
// runnable, not as a reference transport: a real deployment supplies its
// own Transport/PeerEvents backed by an actual network stack (spec.md's
// Non-goals).
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"

	pubsub "github.com/meshsub/go-meshsub"
	"github.com/meshsub/go-meshsub/pb"
)

// memHub is a trivial synchronous in-memory Transport + PeerEvents fan-out
// connecting every node registered with it to every other node.
type memHub struct {
	mu    sync.Mutex
	nodes map[pubsub.PeerID]*pubsub.Node
}

func newMemHub() *memHub {
	return &memHub{nodes: make(map[pubsub.PeerID]*pubsub.Node)}
}

func (h *memHub) register(id pubsub.PeerID, n *pubsub.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for otherID, other := range h.nodes {
		n.NotifyPeerEvent(pubsub.PeerEvent{Kind: pubsub.PeerConnected, Peer: otherID})
		other.NotifyPeerEvent(pubsub.PeerEvent{Kind: pubsub.PeerConnected, Peer: id})
	}
	h.nodes[id] = n
}

func (h *memHub) send(from, to pubsub.PeerID, rpc *pb.RPC) error {
	h.mu.Lock()
	dst, ok := h.nodes[to]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("meshsubd: unknown peer %s", to.Pretty())
	}
	dst.DeliverRPC(from, rpc)
	return nil
}

// peerTransport binds a memHub to the identity of the node sending through
// it, since Transport.Send carries only the destination.
type peerTransport struct {
	hub  *memHub
	from pubsub.PeerID
}

func (t *peerTransport) Send(ctx context.Context, to pubsub.PeerID, rpc *pb.RPC) error {
	return t.hub.send(t.from, to, rpc)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newMemHub()
	topic := pubsub.TopicHash("demo-topic")

	names := []string{"alice", "bob", "carol"}
	nodes := make(map[string]*pubsub.Node, len(names))

	for i, name := range names {
		id := peer.ID(name)
		rnd := pubsub.NewSeededRand(int64(i))

		var deliver pubsub.DeliverFunc = func(owner string) pubsub.DeliverFunc {
			return func(t pubsub.TopicHash, msg *pubsub.GMessage) {
				log.Printf("[%s] received on %s: %q (from %s)", owner, t, msg.Data, msg.Source.Pretty())
			}
		}(name)

		n := pubsub.NewNode(pubsub.Config{
			ID:        id,
			Transport: &peerTransport{hub: hub, from: id},
			Rand:      rnd,
			Deliver:   deliver,
		})
		n.Start(ctx)
		hub.register(id, n)
		nodes[name] = n
	}

	for _, n := range nodes {
		n.Subscribe(topic)
	}

	time.Sleep(2 * pubsub.HeartbeatInterval)

	if err := nodes["alice"].Publish([]pubsub.TopicHash{topic}, []byte("hello mesh")); err != nil {
		log.Fatalf("publish failed: %v", err)
	}

	time.Sleep(2 * pubsub.HeartbeatInterval)

	for name, n := range nodes {
		snap := n.Snapshot()
		log.Printf("[%s] mesh(%s) = %v", name, topic, snap.Mesh[topic])
		n.Stop()
	}
}
