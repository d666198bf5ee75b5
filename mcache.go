package pubsub

// MCache is the sliding-window message cache used for gossip (IHAVE/IWANT)
// replay. It holds MsgHistLen slots, each populated with the message refs
// admitted during one heartbeat, plus a lookup table from MsgRep to the
// GMessage itself. Grounded on how the teacher's gossipsub.go drives its own
// (un-retrieved) mcache.go: Put on publish/ingest, GetGossipIDs for IHAVE,
// Shift once per heartbeat, GetForPeer-style lookup for IWANT replay.
type MCache struct {
	// slots[0] is the newest slot; slots[len-1] is the oldest.
	slots [][]MsgRep
	msgs  map[MsgRep]*GMessage

	histLen      int
	historyGossip int
}

// NewMCache builds an MCache retaining up to histLen slots and considering
// the newest historyGossip slots for gossip_ids.
func NewMCache(histLen, historyGossip int) *MCache {
	return &MCache{
		slots:         [][]MsgRep{{}},
		msgs:          make(map[MsgRep]*GMessage),
		histLen:       histLen,
		historyGossip: historyGossip,
	}
}

// repFor returns the canonical MsgRep this cache indexes a message by. This
// deployment indexes by hash (see DESIGN.md's Open Question decision).
func repFor(m *GMessage) MsgRep {
	return HashRep(m.Hash())
}

// Put inserts msg into the current (newest) slot and the lookup table.
// Idempotent on the message's MsgRep: re-putting an already-cached message
// is a no-op.
func (c *MCache) Put(msg *GMessage) {
	rep := repFor(msg)
	if _, ok := c.msgs[rep]; ok {
		return
	}
	c.msgs[rep] = msg
	c.slots[0] = append(c.slots[0], rep)
}

// Get returns the message for ref if any live slot still holds it.
func (c *MCache) Get(ref MsgRep) (*GMessage, bool) {
	m, ok := c.msgs[ref]
	return m, ok
}

// GossipIDs returns the MsgRep list for messages addressed to topic, drawn
// from the newest HistoryGossip slots, in insertion order, de-duplicated.
func (c *MCache) GossipIDs(topic TopicHash) []MsgRep {
	seen := make(map[MsgRep]struct{})
	var out []MsgRep

	n := c.historyGossip
	if n > len(c.slots) {
		n = len(c.slots)
	}
	for i := 0; i < n; i++ {
		for _, rep := range c.slots[i] {
			if _, dup := seen[rep]; dup {
				continue
			}
			msg, ok := c.msgs[rep]
			if !ok || !msg.HasTopic(topic) {
				continue
			}
			seen[rep] = struct{}{}
			out = append(out, rep)
		}
	}
	return out
}

// Shift appends a new empty slot at the head and, once the history exceeds
// histLen, drops the tail slot along with any lookup entries not referenced
// by a surviving slot. Called once per heartbeat.
//
// Invariant: after Shift, len(c.msgs) equals the size of the union of ids
// across all live slots (spec.md §4.1).
func (c *MCache) Shift() {
	c.slots = append([][]MsgRep{{}}, c.slots...)
	if len(c.slots) <= c.histLen {
		return
	}

	dropped := c.slots[len(c.slots)-1]
	c.slots = c.slots[:len(c.slots)-1]

	for _, rep := range dropped {
		if !c.stillLive(rep) {
			delete(c.msgs, rep)
		}
	}
}

// stillLive reports whether rep appears in any currently retained slot.
func (c *MCache) stillLive(rep MsgRep) bool {
	for _, slot := range c.slots {
		for _, r := range slot {
			if r == rep {
				return true
			}
		}
	}
	return false
}

// Len returns the number of messages currently held in the lookup table,
// exposed for tests asserting invariant 4 (lookup size == union of slots).
func (c *MCache) Len() int {
	return len(c.msgs)
}
