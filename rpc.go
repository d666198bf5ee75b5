package pubsub

import (
	"github.com/meshsub/go-meshsub/pb"
)

// maxOutboundQueue bounds the number of pending message frames held for a
// single peer between flushes; once full, new frames are dropped rather
// than grown without bound. Grounded on the teacher's peer.go outbound
// channel, which applies the same drop-on-full policy (gossipsub.go uses a
// bounded rpcC per peer).
const maxOutboundQueue = 256

// maxIWantIDsPerPeer caps how many message ids a single IHAVE frame can
// trigger an IWANT for; each IHAVE frame is capped separately, so several
// frames from one peer can together request more. Grounded on the
// teacher's IWANT-flood defenses exercised in gossipsub_spam_test.go.
const maxIWantIDsPerPeer = 256

// queueGraft records a GRAFT(topic) to send to peer on the next flush.
func (n *Node) queueGraft(p PeerID, topic TopicHash) {
	n.pendingGraft[p] = append(n.pendingGraft[p], topic)
}

// queuePrune records a PRUNE(topic) to send to peer on the next flush.
func (n *Node) queuePrune(p PeerID, topic TopicHash) {
	n.pendingPrune[p] = append(n.pendingPrune[p], topic)
}

// queueIHave records an IHAVE(topic, ids) to send to peer on the next flush.
func (n *Node) queueIHave(p PeerID, topic TopicHash, ids []string) {
	if len(ids) == 0 {
		return
	}
	n.pendingIHave[p] = append(n.pendingIHave[p], &pb.ControlIHave{
		TopicID:    string(topic),
		MessageIDs: ids,
	})
}

// queueIWant records an IWANT(ids) to send to peer on the next flush.
func (n *Node) queueIWant(p PeerID, ids []string) {
	if len(ids) == 0 {
		return
	}
	n.pendingIWant[p] = append(n.pendingIWant[p], ids...)
}

// queueSubAnnounce records a SUBSCRIBE/UNSUBSCRIBE announcement to send to
// peer on the next flush.
func (n *Node) queueSubAnnounce(p PeerID, topic TopicHash, subscribe bool) {
	n.pendingSubs[p] = append(n.pendingSubs[p], &pb.RPC_SubOpts{
		Subscribe: subscribe,
		TopicID:   string(topic),
	})
}

// queueMessage records wire for delivery to peer on the next flush, dropping
// it if peer's outbound queue is already full (back-pressure, spec.md §5).
func (n *Node) queueMessage(p PeerID, wire *pb.Message) {
	if len(n.pendingMessages[p]) >= maxOutboundQueue {
		log.Debugf("dropping outbound message to %s: queue full", p.Pretty())
		return
	}
	n.pendingMessages[p] = append(n.pendingMessages[p], wire)
}

// flushAll sends one coalesced RPC per peer with pending outbound state,
// then clears all pending maps. Grounded on the teacher's
// GossipSubRouter.flush in gossipsub.go.
func (n *Node) flushAll() {
	peers := make(map[PeerID]struct{})
	for p := range n.pendingGraft {
		peers[p] = struct{}{}
	}
	for p := range n.pendingPrune {
		peers[p] = struct{}{}
	}
	for p := range n.pendingIHave {
		peers[p] = struct{}{}
	}
	for p := range n.pendingIWant {
		peers[p] = struct{}{}
	}
	for p := range n.pendingMessages {
		peers[p] = struct{}{}
	}
	for p := range n.pendingSubs {
		peers[p] = struct{}{}
	}

	for p := range peers {
		n.flushPeer(p)
	}
}

// flushPeer builds and sends the single coalesced RPC owed to p, if any.
func (n *Node) flushPeer(p PeerID) {
	rpc := &pb.RPC{}

	if subs := n.pendingSubs[p]; len(subs) > 0 {
		rpc.Subscriptions = subs
		delete(n.pendingSubs, p)
	}
	if msgs := n.pendingMessages[p]; len(msgs) > 0 {
		rpc.Publish = msgs
		delete(n.pendingMessages, p)
	}

	var ctrl *pb.ControlMessage
	if grafts := n.pendingGraft[p]; len(grafts) > 0 {
		ctrl = ensureControl(ctrl)
		for _, t := range grafts {
			ctrl.Graft = append(ctrl.Graft, &pb.ControlGraft{TopicID: string(t)})
		}
		delete(n.pendingGraft, p)
	}
	if prunes := n.pendingPrune[p]; len(prunes) > 0 {
		ctrl = ensureControl(ctrl)
		for _, t := range prunes {
			ctrl.Prune = append(ctrl.Prune, &pb.ControlPrune{TopicID: string(t)})
		}
		delete(n.pendingPrune, p)
	}
	if ihaves := n.pendingIHave[p]; len(ihaves) > 0 {
		ctrl = ensureControl(ctrl)
		ctrl.Ihave = ihaves
		delete(n.pendingIHave, p)
	}
	if iwant := n.pendingIWant[p]; len(iwant) > 0 {
		ctrl = ensureControl(ctrl)
		ctrl.Iwant = []*pb.ControlIWant{{MessageIDs: iwant}}
		delete(n.pendingIWant, p)
	}
	rpc.Control = ctrl

	if len(rpc.Subscriptions) == 0 && len(rpc.Publish) == 0 && rpc.Control == nil {
		return
	}

	if n.cfg.Transport == nil {
		return
	}
	if err := n.cfg.Transport.Send(n.ctx, p, rpc); err != nil {
		ioErr := newMeshError(ErrKindIO, "", p, err.Error())
		log.Debugf("%v: send to %s failed, disconnecting", ioErr, p.Pretty())
		n.onDisconnect(p)
	}
}

func ensureControl(ctrl *pb.ControlMessage) *pb.ControlMessage {
	if ctrl == nil {
		return &pb.ControlMessage{}
	}
	return ctrl
}

// handleIncomingRPC is the RPC Processor: it applies every section of an
// inbound frame (subscriptions, published messages, control messages) to
// local state, in that order. Grounded on the teacher's
// PubSub.handleIncomingRPC in pubsub.go.
func (n *Node) handleIncomingRPC(from PeerID, frame *pb.RPC) {
	for _, sub := range frame.GetSubscriptions() {
		n.handleSubscription(from, sub)
	}
	for _, pmsg := range frame.GetPublish() {
		n.handleMessage(from, pmsg)
	}
	if ctrl := frame.GetControl(); ctrl != nil {
		n.handleControl(from, ctrl)
	}
	n.flushAll()
}

// handleSubscription applies a single peer SUBSCRIBE/UNSUBSCRIBE
// announcement to the PeerView, and silently drops the peer's mesh/fanout
// membership for that topic on UNSUBSCRIBE (spec.md §4.7).
func (n *Node) handleSubscription(from PeerID, sub *pb.RPC_SubOpts) {
	topic := TopicHash(sub.GetTopicID())
	if sub.GetSubscribe() {
		n.peerView.Subscribe(from, topic)
		return
	}
	n.peerView.Unsubscribe(from, topic)
	n.mesh.RemovePeerSilent(topic, from)
	n.fanout.Remove(topic, from)
}

// handleMessage processes one inbound MESSAGE: duplicate suppression,
// caching, local delivery, and forwarding to the remaining mesh/fanout
// peers of every topic it is addressed to (spec.md §4.7 "Message ingest").
func (n *Node) handleMessage(from PeerID, pmsg *pb.Message) {
	if len(pmsg.GetData()) > MaxMessageSize {
		log.Debugf("dropping oversized message from %s", from.Pretty())
		return
	}

	msg, err := FromWire(pmsg, n.cfg.Clock.Now())
	if err != nil {
		log.Debugf("dropping malformed message from %s: %v", from.Pretty(), err)
		return
	}

	if !n.seen.Observe(msg.Hash()) {
		return
	}
	n.mcache.Put(msg)

	for _, t := range msg.Topics {
		if _, ok := n.mySubs[t]; ok {
			n.cfg.Deliver(t, msg)
		}
		n.forwardToTopic(t, pmsg, from, msg.Source)
	}
}

// handleControl dispatches each control sub-message kind in turn.
func (n *Node) handleControl(from PeerID, ctrl *pb.ControlMessage) {
	for _, ihave := range ctrl.GetIhave() {
		n.handleIHave(from, ihave)
	}
	for _, iwant := range ctrl.GetIwant() {
		n.handleIWant(from, iwant)
	}
	for _, graft := range ctrl.GetGraft() {
		n.handleGraft(from, graft)
	}
	for _, prune := range ctrl.GetPrune() {
		n.handlePrune(from, prune)
	}
}

// handleIHave replies with an IWANT for every advertised id the local node
// holds in neither the SeenSet nor the MCache, capped at
// maxIWantIDsPerPeer (spec.md §4.7 "Gossip ingest"). Both caches are
// checked because they evict independently: an id can fall out of the
// SeenSet's FIFO window while its message is still MCache-resident, and
// re-requesting it would be wasted bandwidth. Grounded on the teacher's
// handleIHave in gossipsub.go.
func (n *Node) handleIHave(from PeerID, ihave *pb.ControlIHave) {
	var want []string
	for _, idStr := range ihave.GetMessageIDs() {
		if len(want) >= maxIWantIDsPerPeer {
			break
		}
		hash := MsgHash(idStr)
		if n.seen.Has(hash) {
			continue
		}
		if _, ok := n.mcache.Get(HashRep(hash)); ok {
			continue
		}
		want = append(want, idStr)
	}
	n.queueIWant(from, want)
}

// handleIWant replays every cached message the peer asked for, skipping ids
// no longer held (already evicted from the MCache). Grounded on the
// teacher's handleIWant in gossipsub.go.
func (n *Node) handleIWant(from PeerID, iwant *pb.ControlIWant) {
	for _, idStr := range iwant.GetMessageIDs() {
		rep := HashRep(MsgHash(idStr))
		msg, ok := n.mcache.Get(rep)
		if !ok {
			continue
		}
		n.queueMessage(from, msg.ToWire())
	}
}

// handleGraft admits the peer into the local mesh for topic, provided the
// local node is itself subscribed to it AND the peer has itself announced
// SUBSCRIBE(topic). Either failure is answered with a PRUNE; a peer that
// never announced the topic is additionally logged as a protocol error
// (NotSubscribedToTopic) (spec.md §4.7 "Graft/Prune handling"). A redundant
// GRAFT for an already-grafted peer is silently acknowledged. Grounded on the
// teacher's handleGraft in gossipsub.go.
func (n *Node) handleGraft(from PeerID, graft *pb.ControlGraft) {
	topic := TopicHash(graft.GetTopicID())

	if _, ok := n.mySubs[topic]; !ok {
		n.queuePrune(from, topic)
		return
	}
	if !n.peerView.IsSubscribed(from, topic) {
		err := newMeshError(ErrKindNotSubscribedToTopic, topic, from, "peer never announced SUBSCRIBE")
		log.Debugf("rejecting GRAFT from %s: %v", from.Pretty(), err)
		n.queuePrune(from, topic)
		return
	}
	if n.mesh.Contains(topic, from) {
		return
	}
	_ = n.mesh.AddPeer(topic, from)
}

// handlePrune removes the peer from the local mesh view of topic. Grounded
// on the teacher's handlePrune in gossipsub.go.
func (n *Node) handlePrune(from PeerID, prune *pb.ControlPrune) {
	topic := TopicHash(prune.GetTopicID())
	n.mesh.RemovePeerSilent(topic, from)
}
