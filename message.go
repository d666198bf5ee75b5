package pubsub

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/mr-tron/base58"

	"github.com/meshsub/go-meshsub/pb"
)

// TopicHash is an opaque, comparable, hashable topic identifier, convertible
// to/from its canonical string form for free since it is one.
type TopicHash string

// String returns the canonical string form of the topic hash.
func (t TopicHash) String() string { return string(t) }

// PeerID is an opaque peer identity: comparable, hashable, and renderable to
// a canonical base-58 string via Pretty(). It is the teacher's own identity
// type (go-libp2p-core/peer.ID), reused rather than reinvented.
type PeerID = peer.ID

// MsgHash is a deterministic, base-58 encoded digest of a message's
// serialized form. Two messages produce identical hashes iff their
// serialized forms are byte-equal.
type MsgHash string

// MsgID is the concatenation of a message's seq_no (as UTF-8) and the
// base-58 source peer id. Optional; used instead of MsgHash in
// privacy-sensitive deployments.
type MsgID string

// GMessage is an immutable, published gossip message.
type GMessage struct {
	Source   PeerID
	Data     []byte
	SeqNo    []byte
	Topics   []TopicHash
	TimeSent time.Time

	hash MsgHash
	id   MsgID
}

// Hash returns the message's MsgHash, computed at construction time.
func (m *GMessage) Hash() MsgHash { return m.hash }

// ID returns the message's MsgID, computed at construction time.
func (m *GMessage) ID() MsgID { return m.id }

// HasTopic reports whether the message is addressed to the given topic.
func (m *GMessage) HasTopic(t TopicHash) bool {
	for _, mt := range m.Topics {
		if mt == t {
			return true
		}
	}
	return false
}

// ToWire converts a GMessage to its wire representation.
func (m *GMessage) ToWire() *pb.Message {
	topics := make([]string, len(m.Topics))
	for i, t := range m.Topics {
		topics[i] = string(t)
	}
	return &pb.Message{
		From:     []byte(m.Source),
		Data:     m.Data,
		Seqno:    m.SeqNo,
		TopicIDs: topics,
	}
}

// NewGMessage constructs a GMessage, assigns TimeSent, and computes its hash
// and id. It does not enforce the size limit; callers publishing a message
// must check len(data) <= MaxMessageSize themselves (see Node.Publish) so
// that messages reconstructed from the wire, which may already have been
// accepted by a remote peer, are never rejected here.
func NewGMessage(source PeerID, data []byte, seqNo []byte, topics []TopicHash, now time.Time) (*GMessage, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("meshsub: message must have at least one topic")
	}
	m := &GMessage{
		Source:   source,
		Data:     data,
		SeqNo:    seqNo,
		Topics:   topics,
		TimeSent: now,
	}
	m.hash = HashMessage(m.ToWire())
	m.id = MsgID(string(seqNo) + source.Pretty())
	return m, nil
}

// FromWire reconstructs a GMessage from its wire form, computing its hash
// from the wire fields; no expected hash is taken or compared against.
// recvTime is used as TimeSent since the wire
// format carries no timestamp field (time_sent is publisher-local and not
// serialized).
func FromWire(pmsg *pb.Message, recvTime time.Time) (*GMessage, error) {
	source := peer.ID(pmsg.GetFrom())
	if len(pmsg.GetFrom()) == 0 {
		return nil, ErrInvalidPeerID
	}
	topics := make([]TopicHash, len(pmsg.GetTopicIDs()))
	for i, t := range pmsg.GetTopicIDs() {
		topics[i] = TopicHash(t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("meshsub: message must have at least one topic")
	}
	m := &GMessage{
		Source:   source,
		Data:     pmsg.GetData(),
		SeqNo:    pmsg.GetSeqno(),
		Topics:   topics,
		TimeSent: recvTime,
	}
	m.hash = HashMessage(pmsg)
	m.id = MsgID(string(m.SeqNo) + source.Pretty())
	return m, nil
}

// HashMessage computes the MsgHash of a wire message: a base-58 encoded
// SHA-256 digest of the canonical serialized form, with signature/key
// fields absent (MessageForHash strips them, though this package never sets
// them in the first place).
func HashMessage(pmsg *pb.Message) MsgHash {
	canon := pb.MessageForHash(pmsg)
	data, err := (pb.GossipCodec{}).Encode(&pb.RPC{Publish: []*pb.Message{canon}})
	if err != nil {
		// Encoding a well-formed in-memory struct cannot fail; treat as fatal
		// per spec.md §7 ("violations of internal invariants are fatal").
		panic(fmt.Sprintf("meshsub: unexpected hash encoding failure: %v", err))
	}
	sum := sha256.Sum256(data)
	return MsgHash(base58.Encode(sum[:]))
}

// MsgRepKind tags which variant a MsgRep holds.
type MsgRepKind int

const (
	MsgRepKindHash MsgRepKind = iota
	MsgRepKindID
)

// MsgRep is a compact, tagged-union reference to a message: either its
// MsgHash (canonical) or its MsgID (optional, for privacy-sensitive
// deployments). A deployment must fix one form; this package's MCache and
// RPC processor use MsgRepKindHash only (see DESIGN.md's Open Question
// decision): ids arriving in IHAVE/IWANT frames are always read as hashes.
type MsgRep struct {
	Kind MsgRepKind
	Hash MsgHash
	ID   MsgID
}

// HashRep builds a MsgRep from a MsgHash.
func HashRep(h MsgHash) MsgRep { return MsgRep{Kind: MsgRepKindHash, Hash: h} }

// IDRep builds a MsgRep from a MsgID.
func IDRep(id MsgID) MsgRep { return MsgRep{Kind: MsgRepKindID, ID: id} }

// String renders the MsgRep's underlying reference as a wire-ready string,
// exhaustively matching both variants.
func (r MsgRep) String() string {
	switch r.Kind {
	case MsgRepKindHash:
		return string(r.Hash)
	case MsgRepKindID:
		return string(r.ID)
	default:
		panic("meshsub: unreachable MsgRep variant")
	}
}

// SubscriptionAction is the action a SUBSCRIBE/UNSUBSCRIBE frame requests.
type SubscriptionAction int

const (
	ActionSubscribe SubscriptionAction = iota
	ActionUnsubscribe
)

// Subscription is a subscription control message as seen by the RPC processor.
type Subscription struct {
	Action SubscriptionAction
	Topic  TopicHash
}
