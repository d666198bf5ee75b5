package pubsub

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/meshsub/go-meshsub/pb"
)

func TestNewGMessageRequiresTopic(t *testing.T) {
	if _, err := NewGMessage(peer.ID("src"), []byte("data"), []byte("1"), nil, time.Now()); err == nil {
		t.Fatal("expected error constructing a message with no topics")
	}
}

func TestGMessageHashDeterministic(t *testing.T) {
	now := time.Unix(0, 0)
	m1, err := NewGMessage(peer.ID("src"), []byte("data"), []byte("1"), []TopicHash{"t1"}, now)
	if err != nil {
		t.Fatalf("NewGMessage: %v", err)
	}
	m2, err := NewGMessage(peer.ID("src"), []byte("data"), []byte("1"), []TopicHash{"t1"}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewGMessage: %v", err)
	}

	if m1.Hash() != m2.Hash() {
		t.Fatal("expected identical wire content to hash identically regardless of TimeSent")
	}

	m3, err := NewGMessage(peer.ID("src"), []byte("different"), []byte("1"), []TopicHash{"t1"}, now)
	if err != nil {
		t.Fatalf("NewGMessage: %v", err)
	}
	if m1.Hash() == m3.Hash() {
		t.Fatal("expected different payloads to hash differently")
	}
}

func TestFromWireRoundTrip(t *testing.T) {
	now := time.Unix(0, 0)
	orig, err := NewGMessage(peer.ID("src"), []byte("data"), []byte("1"), []TopicHash{"t1", "t2"}, now)
	if err != nil {
		t.Fatalf("NewGMessage: %v", err)
	}

	wire := orig.ToWire()
	recv, err := FromWire(wire, now)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}

	if recv.Hash() != orig.Hash() {
		t.Fatal("expected round-tripped message to hash identically")
	}
	if !recv.HasTopic("t1") || !recv.HasTopic("t2") {
		t.Fatal("expected round-tripped message to preserve topics")
	}
}

func TestFromWireRejectsMissingFrom(t *testing.T) {
	wire := &pb.Message{Data: []byte("x"), Seqno: []byte("1"), TopicIDs: []string{"t1"}}
	if _, err := FromWire(wire, time.Now()); err != ErrInvalidPeerID {
		t.Fatalf("expected ErrInvalidPeerID, got %v", err)
	}
}

func TestFromWireRejectsNoTopics(t *testing.T) {
	wire := &pb.Message{From: []byte("src"), Data: []byte("x"), Seqno: []byte("1")}
	if _, err := FromWire(wire, time.Now()); err == nil {
		t.Fatal("expected error constructing a message with no topics")
	}
}

func TestMsgRepStringExhaustive(t *testing.T) {
	h := HashRep("abc")
	if h.String() != "abc" {
		t.Fatalf("expected hash rep string to be the raw hash, got %q", h.String())
	}
	id := IDRep("1peer")
	if id.String() != "1peer" {
		t.Fatalf("expected id rep string to be the raw id, got %q", id.String())
	}
}
