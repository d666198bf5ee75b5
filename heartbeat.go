package pubsub

import "time"

// heartbeatTimer fires the heartbeat on HeartbeatInitialDelay, then every
// HeartbeatInterval, pushing the actual work onto the serialized event
// queue via n.eval so it never races with incoming RPCs or requests.
// Grounded on the teacher's GossipSubRouter.heartbeatTimer in gossipsub.go.
func (n *Node) heartbeatTimer() {
	defer n.wg.Done()

	t := time.NewTimer(HeartbeatInitialDelay)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			select {
			case n.eval <- n.heartbeat:
			case <-n.ctx.Done():
				return
			}
			t.Reset(HeartbeatInterval)
		case <-n.ctx.Done():
			return
		}
	}
}

// heartbeat runs the five-phase periodic maintenance cycle (spec.md §4.6):
// mesh maintenance, fanout expiry, fanout replenishment, gossip emission,
// and the MCache slot shift. Grounded on the teacher's
// GossipSubRouter.heartbeat in gossipsub.go.
func (n *Node) heartbeat() {
	n.heartbeatTicks++
	now := n.cfg.Clock.Now()

	n.maintainMesh()
	n.fanout.Sweep(now, n.cfg.FanoutTTL)
	n.replenishFanout(now)
	n.emitGossip()
	n.mcache.Shift()

	n.flushAll()
}

// maintainMesh grows each mesh topic below LowWatermark by GRAFTing newly
// sampled subscribers, and shrinks each mesh topic at or above HighWatermark by
// PRUNEing down to TargetDegree. Grounded on the "mesh maintenance" block of
// the teacher's heartbeat() in gossipsub.go.
func (n *Node) maintainMesh() {
	for _, topic := range n.mesh.Topics() {
		size := n.mesh.Size(topic)

		if size < n.cfg.LowWatermark {
			n.growMesh(topic, n.cfg.TargetDegree-size)
		} else if size >= n.cfg.HighWatermark {
			n.shrinkMesh(topic, size-n.cfg.TargetDegree)
		}
	}
}

// growMesh GRAFTs up to need additional peers into topic's mesh, sampled
// from PeerView subscribers not already members.
func (n *Node) growMesh(topic TopicHash, need int) {
	if need <= 0 {
		return
	}
	current := n.mesh.PeerList(topic)
	inMesh := make(map[PeerID]struct{}, len(current))
	for _, p := range current {
		inMesh[p] = struct{}{}
	}

	var candidates []PeerID
	for _, p := range n.peerView.Subscribers(topic) {
		if _, ok := inMesh[p]; !ok {
			candidates = append(candidates, p)
		}
	}

	picked := samplePeers(n.cfg.Rand, candidates, need)
	for _, p := range picked {
		if err := n.mesh.AddPeer(topic, p); err == nil {
			n.queueGraft(p, topic)
		}
	}
}

// shrinkMesh PRUNEs excess peers out of topic's mesh, chosen at random,
// until it is back down to TargetDegree.
func (n *Node) shrinkMesh(topic TopicHash, excess int) {
	if excess <= 0 {
		return
	}
	members := n.mesh.PeerList(topic)
	drop := samplePeers(n.cfg.Rand, members, excess)
	for _, p := range drop {
		if err := n.mesh.RemovePeer(topic, p); err == nil {
			n.queuePrune(p, topic)
		}
	}
}

// replenishFanout tops up the peer set of every fanout topic whose
// membership has drifted below TargetDegree, sampling from current
// subscribers not already in the set. Grounded on the "fanout maintenance"
// block of the teacher's heartbeat() in gossipsub.go.
func (n *Node) replenishFanout(now time.Time) {
	for _, topic := range n.fanout.Topics() {
		current := n.fanout.PeerList(topic)
		if len(current) >= n.cfg.TargetDegree {
			continue
		}

		inFanout := make(map[PeerID]struct{}, len(current))
		for _, p := range current {
			inFanout[p] = struct{}{}
		}
		var candidates []PeerID
		for _, p := range n.peerView.Subscribers(topic) {
			if _, ok := inFanout[p]; !ok {
				candidates = append(candidates, p)
			}
		}

		need := n.cfg.TargetDegree - len(current)
		for _, p := range samplePeers(n.cfg.Rand, candidates, need) {
			n.fanout.Add(topic, p)
		}
	}
}

// emitGossip advertises the recent-message ids held for each mesh or
// fanout topic to a TargetDegree-sized sample of subscribers outside that
// topic's mesh and fanout sets (spec.md §4.6 "Gossip emission"). Grounded
// on the teacher's "emit gossip" block of heartbeat() in gossipsub.go.
func (n *Node) emitGossip() {
	topics := make(map[TopicHash]struct{})
	for _, t := range n.mesh.Topics() {
		topics[t] = struct{}{}
	}
	for _, t := range n.fanout.Topics() {
		topics[t] = struct{}{}
	}

	for topic := range topics {
		reps := n.mcache.GossipIDs(topic)
		if len(reps) == 0 {
			continue
		}
		ids := make([]string, len(reps))
		for i, r := range reps {
			ids[i] = r.String()
		}

		excluded := make(map[PeerID]struct{})
		for _, p := range n.mesh.PeerList(topic) {
			excluded[p] = struct{}{}
		}
		for _, p := range n.fanout.PeerList(topic) {
			excluded[p] = struct{}{}
		}

		var candidates []PeerID
		for _, p := range n.peerView.Subscribers(topic) {
			if _, ok := excluded[p]; !ok {
				candidates = append(candidates, p)
			}
		}

		targets := samplePeers(n.cfg.Rand, candidates, n.cfg.TargetDegree)
		for _, p := range targets {
			shuffled := make([]string, len(ids))
			copy(shuffled, ids)
			shuffleStrings(n.cfg.Rand, shuffled)
			n.queueIHave(p, topic, shuffled)
		}
	}
}
