package pubsub

import "time"

// Fanout tracks, per topic the local node publishes to but has not
// subscribed to, the peer set used to inject messages plus the last publish
// time. Grounded on the teacher's gs.fanout/gs.lastpub maps and the
// fanout-expiry/replenishment block in gossipsub.go's heartbeat().
type Fanout struct {
	peers    map[TopicHash]map[PeerID]struct{}
	lastPub  map[TopicHash]time.Time
}

// NewFanout builds an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{
		peers:   make(map[TopicHash]map[PeerID]struct{}),
		lastPub: make(map[TopicHash]time.Time),
	}
}

// Set replaces the peer set for topic and bumps its last-publish time.
func (f *Fanout) Set(topic TopicHash, peers []PeerID, now time.Time) {
	set := make(map[PeerID]struct{}, len(peers))
	for _, p := range peers {
		set[p] = struct{}{}
	}
	f.peers[topic] = set
	f.lastPub[topic] = now
}

// Touch bumps topic's last-publish time without changing its peer set.
func (f *Fanout) Touch(topic TopicHash, now time.Time) {
	f.lastPub[topic] = now
}

// Add inserts peer into topic's fanout set.
func (f *Fanout) Add(topic TopicHash, peer PeerID) {
	set, ok := f.peers[topic]
	if !ok {
		set = make(map[PeerID]struct{})
		f.peers[topic] = set
	}
	set[peer] = struct{}{}
}

// Has reports whether topic has a live fanout entry.
func (f *Fanout) Has(topic TopicHash) bool {
	_, ok := f.peers[topic]
	return ok
}

// PeersOf returns topic's fanout peer set, or nil if absent.
func (f *Fanout) PeersOf(topic TopicHash) map[PeerID]struct{} {
	return f.peers[topic]
}

// PeerList returns topic's fanout peers as a slice.
func (f *Fanout) PeerList(topic TopicHash) []PeerID {
	set := f.peers[topic]
	out := make([]PeerID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// Remove deletes peer from topic's fanout set, if present.
func (f *Fanout) Remove(topic TopicHash, peer PeerID) {
	if set, ok := f.peers[topic]; ok {
		delete(set, peer)
	}
}

// RemovePeerEverywhere removes peer from every topic's fanout set (used on
// disconnect). Returns the affected topics.
func (f *Fanout) RemovePeerEverywhere(peer PeerID) []TopicHash {
	var affected []TopicHash
	for topic, set := range f.peers {
		if _, ok := set[peer]; ok {
			delete(set, peer)
			affected = append(affected, topic)
		}
	}
	return affected
}

// Topics returns all topics with a live fanout entry.
func (f *Fanout) Topics() []TopicHash {
	out := make([]TopicHash, 0, len(f.peers))
	for t := range f.peers {
		out = append(out, t)
	}
	return out
}

// Sweep removes any entry whose last-publish age exceeds ttl (spec.md
// "Entry is dropped when now - last_pub_time > FANOUT_TTL").
func (f *Fanout) Sweep(now time.Time, ttl time.Duration) {
	for topic, last := range f.lastPub {
		if now.Sub(last) > ttl {
			delete(f.peers, topic)
			delete(f.lastPub, topic)
		}
	}
}
