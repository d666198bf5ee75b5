package pubsub

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshsub/go-meshsub/pb"
)

// TestDuplicateSuppression is scenario S3: peer A sends message m, the
// local node forwards to mesh(T)\{A}; A re-sends m and the local node must
// neither forward again nor deliver it to the application a second time.
func TestDuplicateSuppression(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 10, tr)

	peerA := peer.ID("A")
	peerB := peer.ID("B")
	n.mesh.Insert("T", nil)
	_ = n.mesh.AddPeer("T", peerA)
	_ = n.mesh.AddPeer("T", peerB)

	delivered := 0
	n.cfg.Deliver = func(TopicHash, *GMessage) { delivered++ }
	n.mySubs["T"] = struct{}{}

	wire := &pb.Message{From: []byte("src"), Data: []byte("hi"), Seqno: []byte("1"), TopicIDs: []string{"T"}}

	n.handleIncomingRPC(peerA, &pb.RPC{Publish: []*pb.Message{wire}})
	require.Equal(t, 1, delivered, "expected first delivery of a new message")
	require.Equal(t, 1, len(tr.sent[peerB]), "expected one forward to B on first receipt")
	require.Equal(t, 0, len(tr.sent[peerA]), "expected no forward back to the sender")

	n.handleIncomingRPC(peerA, &pb.RPC{Publish: []*pb.Message{wire}})
	assert.Equal(t, 1, delivered, "expected no second local delivery of a duplicate")
	assert.Equal(t, 1, len(tr.sent[peerB]), "expected no second forward of a duplicate")
}

// TestIHaveIWantRoundTrip is scenario S4: an IHAVE advertising one id we
// already hold and one we don't triggers an IWANT for only the missing one;
// a subsequent IWANT for the held id triggers a MESSAGE reply.
func TestIHaveIWantRoundTrip(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 11, tr)

	held, err := NewGMessage(peer.ID("src"), []byte("held"), []byte("1"), []TopicHash{"T"}, time.Unix(0, 0))
	require.NoError(t, err)
	n.seen.Observe(held.Hash())
	n.mcache.Put(held)

	peerB := peer.ID("B")
	n.handleIHave(peerB, &pb.ControlIHave{
		TopicID:    "T",
		MessageIDs: []string{string(held.Hash()), "missing-id"},
	})

	require.Len(t, n.pendingIWant[peerB], 1)
	assert.Equal(t, "missing-id", n.pendingIWant[peerB][0])

	n.handleIWant(peerB, &pb.ControlIWant{MessageIDs: []string{string(held.Hash())}})
	require.Len(t, n.pendingMessages[peerB], 1)
	assert.Equal(t, held.Data, n.pendingMessages[peerB][0].Data)
}

// TestIHaveSkipsMCacheResidentEvictedFromSeenSet covers an id that has
// fallen out of the SeenSet's FIFO window but is still held in the MCache
// (the two caches evict independently): an IHAVE for it must not trigger a
// needless IWANT.
func TestIHaveSkipsMCacheResidentEvictedFromSeenSet(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 18, tr)

	evicted, err := NewGMessage(peer.ID("src"), []byte("evicted"), []byte("1"), []TopicHash{"T"}, time.Unix(0, 0))
	require.NoError(t, err)
	n.mcache.Put(evicted) // MCache-resident, but never Observe'd into SeenSet

	peerB := peer.ID("B")
	n.handleIHave(peerB, &pb.ControlIHave{
		TopicID:    "T",
		MessageIDs: []string{string(evicted.Hash())},
	})

	assert.Empty(t, n.pendingIWant[peerB], "expected no IWANT for an id still held in MCache")
}

func TestHandleGraftAcceptsWhenLocallySubscribed(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 12, tr)
	n.mySubs["T"] = struct{}{}
	n.mesh.Insert("T", nil)

	peerA := peer.ID("A")
	n.peerView.Subscribe(peerA, "T")
	n.handleGraft(peerA, &pb.ControlGraft{TopicID: "T"})

	assert.True(t, n.mesh.Contains("T", peerA))
}

func TestHandleGraftRejectsWhenLocallyNotSubscribed(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 13, tr)

	peerA := peer.ID("A")
	n.handleGraft(peerA, &pb.ControlGraft{TopicID: "T"})

	assert.False(t, n.mesh.Contains("T", peerA))
	require.Len(t, n.pendingPrune[peerA], 1)
	assert.Equal(t, TopicHash("T"), n.pendingPrune[peerA][0])
}

// TestHandleGraftRejectsWhenPeerNotInPeerView covers the second GRAFT
// rejection case of spec.md §4.7: the local node is subscribed to the
// topic, but the remote peer never announced SUBSCRIBE for it — a protocol
// error answered with a PRUNE, not an admit.
func TestHandleGraftRejectsWhenPeerNotInPeerView(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 19, tr)
	n.mySubs["T"] = struct{}{}
	n.mesh.Insert("T", nil)

	peerA := peer.ID("A")
	n.handleGraft(peerA, &pb.ControlGraft{TopicID: "T"})

	assert.False(t, n.mesh.Contains("T", peerA))
	require.Len(t, n.pendingPrune[peerA], 1)
	assert.Equal(t, TopicHash("T"), n.pendingPrune[peerA][0])
}

func TestHandleGraftRedundantIsSilentAck(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 14, tr)
	n.mySubs["T"] = struct{}{}
	n.mesh.Insert("T", nil)

	peerA := peer.ID("A")
	n.peerView.Subscribe(peerA, "T")
	n.handleGraft(peerA, &pb.ControlGraft{TopicID: "T"})
	n.handleGraft(peerA, &pb.ControlGraft{TopicID: "T"})

	assert.True(t, n.mesh.Contains("T", peerA))
	assert.Empty(t, n.pendingPrune[peerA], "expected no PRUNE for a redundant GRAFT")
}

func TestHandlePruneRemovesFromMesh(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 15, tr)

	peerA := peer.ID("A")
	n.mesh.Insert("T", nil)
	_ = n.mesh.AddPeer("T", peerA)

	n.handlePrune(peerA, &pb.ControlPrune{TopicID: "T"})

	assert.False(t, n.mesh.Contains("T", peerA))
}

// TestDisconnectCleanup is scenario S6: peer C in mesh(T) and fanout(U)
// disconnects; afterwards mesh(T) and fanout(U) both exclude C and
// PeerView has no entry for C.
func TestDisconnectCleanup(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 16, tr)

	peerC := peer.ID("C")
	n.mesh.Insert("T", nil)
	_ = n.mesh.AddPeer("T", peerC)
	n.fanout.Set("U", []PeerID{peerC}, time.Now())
	n.peerView.Subscribe(peerC, "T")
	n.peerView.Subscribe(peerC, "U")
	n.connectedPeers[peerC] = struct{}{}

	n.onDisconnect(peerC)

	assert.False(t, n.mesh.Contains("T", peerC))
	assert.False(t, func() bool { _, ok := n.fanout.PeersOf("U")[peerC]; return ok }())
	assert.False(t, n.peerView.IsSubscribed(peerC, "T"))
	assert.False(t, n.peerView.IsSubscribed(peerC, "U"))
}

func TestHandleSubscriptionUnsubscribeClearsMeshAndFanout(t *testing.T) {
	tr := newRecordingTransport()
	n := newTestNode(t, 17, tr)

	peerA := peer.ID("A")
	n.mesh.Insert("T", nil)
	_ = n.mesh.AddPeer("T", peerA)
	n.fanout.Set("T", []PeerID{peerA}, time.Now())
	n.peerView.Subscribe(peerA, "T")

	n.handleSubscription(peerA, &pb.RPC_SubOpts{Subscribe: false, TopicID: "T"})

	assert.False(t, n.mesh.Contains("T", peerA))
	assert.False(t, func() bool { _, ok := n.fanout.PeersOf("T")[peerA]; return ok }())
	assert.False(t, n.peerView.IsSubscribed(peerA, "T"))
}
