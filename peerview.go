package pubsub

// PeerView holds, per known peer, the set of topics that peer has announced
// via SUBSCRIBE. Grounded on the teacher's topic-keyed p.topics map
// (pubsub.go), inverted to the peer-keyed view spec.md §3 describes, and on
// gs.RemovePeer (gossipsub.go) for the disconnect fan-out.
type PeerView struct {
	subs map[PeerID]map[TopicHash]struct{}
}

// NewPeerView builds an empty PeerView.
func NewPeerView() *PeerView {
	return &PeerView{subs: make(map[PeerID]map[TopicHash]struct{})}
}

// Subscribe records that peer has announced topic.
func (v *PeerView) Subscribe(peer PeerID, topic TopicHash) {
	set, ok := v.subs[peer]
	if !ok {
		set = make(map[TopicHash]struct{})
		v.subs[peer] = set
	}
	set[topic] = struct{}{}
}

// Unsubscribe removes peer's announcement of topic.
func (v *PeerView) Unsubscribe(peer PeerID, topic TopicHash) {
	if set, ok := v.subs[peer]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(v.subs, peer)
		}
	}
}

// IsSubscribed reports whether peer has announced topic.
func (v *PeerView) IsSubscribed(peer PeerID, topic TopicHash) bool {
	set, ok := v.subs[peer]
	if !ok {
		return false
	}
	_, ok = set[topic]
	return ok
}

// Subscribers returns every peer that has announced topic.
func (v *PeerView) Subscribers(topic TopicHash) []PeerID {
	var out []PeerID
	for p, set := range v.subs {
		if _, ok := set[topic]; ok {
			out = append(out, p)
		}
	}
	return out
}

// OnDisconnect removes peer from the view entirely, returning the topics it
// had been subscribed to (the caller is responsible for also removing the
// peer from Mesh and Fanout, per spec.md §4.5).
func (v *PeerView) OnDisconnect(peer PeerID) []TopicHash {
	set, ok := v.subs[peer]
	if !ok {
		return nil
	}
	topics := make([]TopicHash, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	delete(v.subs, peer)
	return topics
}
