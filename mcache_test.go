package pubsub

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
)

func newTestMessage(t *testing.T, seq string, topics ...TopicHash) *GMessage {
	t.Helper()
	m, err := NewGMessage(peer.ID("src"), []byte("payload-"+seq), []byte(seq), topics, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewGMessage: %v", err)
	}
	return m
}

func TestMCachePutIdempotentAndGet(t *testing.T) {
	c := NewMCache(5, 3)
	m := newTestMessage(t, "1", "t1")

	c.Put(m)
	c.Put(m) // idempotent

	if c.Len() != 1 {
		t.Fatalf("expected Len() == 1 after duplicate Put, got %d", c.Len())
	}

	got, ok := c.Get(repFor(m))
	if !ok || got != m {
		t.Fatal("expected Get to return the same message")
	}
}

func TestMCacheGossipIDsRespectsHistoryGossipAndTopic(t *testing.T) {
	c := NewMCache(5, 2)

	m1 := newTestMessage(t, "1", "t1")
	c.Put(m1)
	c.Shift()

	m2 := newTestMessage(t, "2", "t2")
	c.Put(m2)
	c.Shift()

	m3 := newTestMessage(t, "3", "t1")
	c.Put(m3)
	// m3 is in slot 0, m2 in slot 1, m1 in slot 2; historyGossip=2 covers slots 0-1

	ids := c.GossipIDs("t1")
	if len(ids) != 1 || ids[0] != repFor(m3) {
		t.Fatalf("expected only m3's rep for t1 within history window, got %v", ids)
	}

	ids2 := c.GossipIDs("t2")
	if len(ids2) != 1 || ids2[0] != repFor(m2) {
		t.Fatalf("expected m2's rep for t2, got %v", ids2)
	}
}

func TestMCacheShiftEvictsBeyondHistLen(t *testing.T) {
	c := NewMCache(2, 2)

	m1 := newTestMessage(t, "1", "t1")
	c.Put(m1)
	c.Shift() // slots: [], [m1]

	m2 := newTestMessage(t, "2", "t1")
	c.Put(m2)
	c.Shift() // slots: [], [m2], [m1] -> trimmed to histLen=2 -> [], [m2]; m1 dropped

	if _, ok := c.Get(repFor(m1)); ok {
		t.Fatal("expected m1 to have been evicted after exceeding histLen")
	}
	if _, ok := c.Get(repFor(m2)); !ok {
		t.Fatal("expected m2 to still be present")
	}
	if c.Len() != 1 {
		t.Fatalf("expected lookup table to match live slot union, got Len()=%d", c.Len())
	}
}

func TestMCacheLenMatchesUnionOfSlots(t *testing.T) {
	c := NewMCache(3, 3)
	for i := 0; i < 10; i++ {
		m := newTestMessage(t, string(rune('a'+i)), "t1")
		c.Put(m)
		c.Shift()

		union := make(map[MsgRep]struct{})
		for _, slot := range c.slots {
			for _, rep := range slot {
				union[rep] = struct{}{}
			}
		}
		if c.Len() != len(union) {
			t.Fatalf("Len()=%d does not match union of live slots=%d", c.Len(), len(union))
		}
	}
}
