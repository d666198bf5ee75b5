// Package pb holds the wire types for the gossip RPC protocol, and an
// encode/decode pair over them. The fields mirror spec.md's wire format:
// SUBSCRIBE/UNSUBSCRIBE opts, MESSAGE records, and a CONTROL record with
// parallel IHAVE/IWANT/GRAFT/PRUNE arrays. Unknown fields are ignored by
// protobuf's reflection-based decoder by construction.
//
// ControlGraft and ControlPrune carry only TopicID. The rust-libp2p source
// this protocol was distilled from references a `messages` field on both
// that does not exist anywhere in its own message.rs; that is a bug in the
// source, not a feature, and is not reproduced here.
package pb

import (
	"github.com/gogo/protobuf/proto"
)

// RPC is the top-level framed record exchanged between peers.
type RPC struct {
	Subscriptions []*RPC_SubOpts   `protobuf:"bytes,1,rep,name=subscriptions" json:"subscriptions,omitempty"`
	Publish       []*Message       `protobuf:"bytes,2,rep,name=publish" json:"publish,omitempty"`
	Control       *ControlMessage  `protobuf:"bytes,3,opt,name=control" json:"control,omitempty"`
}

func (m *RPC) Reset()         { *m = RPC{} }
func (m *RPC) String() string { return proto.CompactTextString(m) }
func (*RPC) ProtoMessage()    {}

func (m *RPC) GetSubscriptions() []*RPC_SubOpts {
	if m != nil {
		return m.Subscriptions
	}
	return nil
}

func (m *RPC) GetPublish() []*Message {
	if m != nil {
		return m.Publish
	}
	return nil
}

func (m *RPC) GetControl() *ControlMessage {
	if m != nil {
		return m.Control
	}
	return nil
}

// RPC_SubOpts is a single SUBSCRIBE/UNSUBSCRIBE announcement.
type RPC_SubOpts struct {
	Subscribe bool   `protobuf:"varint,1,opt,name=subscribe" json:"subscribe"`
	TopicID   string `protobuf:"bytes,2,opt,name=topic_id" json:"topic_id"`
}

func (m *RPC_SubOpts) Reset()         { *m = RPC_SubOpts{} }
func (m *RPC_SubOpts) String() string { return proto.CompactTextString(m) }
func (*RPC_SubOpts) ProtoMessage()    {}

func (m *RPC_SubOpts) GetSubscribe() bool {
	return m != nil && m.Subscribe
}

func (m *RPC_SubOpts) GetTopicID() string {
	if m != nil {
		return m.TopicID
	}
	return ""
}

// Message is a single published record. The MsgHash is computed over this
// struct's serialized form with From/Data/Seqno/TopicIDs set and
// signature/key fields absent (they are reserved and unspecified).
type Message struct {
	From     []byte   `protobuf:"bytes,1,opt,name=from" json:"from,omitempty"`
	Data     []byte   `protobuf:"bytes,2,opt,name=data" json:"data,omitempty"`
	Seqno    []byte   `protobuf:"bytes,3,opt,name=seqno" json:"seqno,omitempty"`
	TopicIDs []string `protobuf:"bytes,4,rep,name=topic_ids" json:"topic_ids,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return proto.CompactTextString(m) }
func (*Message) ProtoMessage()    {}

func (m *Message) GetFrom() []byte {
	if m != nil {
		return m.From
	}
	return nil
}

func (m *Message) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *Message) GetSeqno() []byte {
	if m != nil {
		return m.Seqno
	}
	return nil
}

func (m *Message) GetTopicIDs() []string {
	if m != nil {
		return m.TopicIDs
	}
	return nil
}

// ControlMessage aggregates the four control-frame kinds into parallel arrays.
type ControlMessage struct {
	Ihave []*ControlIHave `protobuf:"bytes,1,rep,name=ihave" json:"ihave,omitempty"`
	Iwant []*ControlIWant `protobuf:"bytes,2,rep,name=iwant" json:"iwant,omitempty"`
	Graft []*ControlGraft `protobuf:"bytes,3,rep,name=graft" json:"graft,omitempty"`
	Prune []*ControlPrune `protobuf:"bytes,4,rep,name=prune" json:"prune,omitempty"`
}

func (m *ControlMessage) Reset()         { *m = ControlMessage{} }
func (m *ControlMessage) String() string { return proto.CompactTextString(m) }
func (*ControlMessage) ProtoMessage()    {}

func (m *ControlMessage) GetIhave() []*ControlIHave {
	if m != nil {
		return m.Ihave
	}
	return nil
}

func (m *ControlMessage) GetIwant() []*ControlIWant {
	if m != nil {
		return m.Iwant
	}
	return nil
}

func (m *ControlMessage) GetGraft() []*ControlGraft {
	if m != nil {
		return m.Graft
	}
	return nil
}

func (m *ControlMessage) GetPrune() []*ControlPrune {
	if m != nil {
		return m.Prune
	}
	return nil
}

// ControlIHave advertises recently-seen message ids for a topic.
type ControlIHave struct {
	TopicID    string   `protobuf:"bytes,1,opt,name=topic_id" json:"topic_id"`
	MessageIDs []string `protobuf:"bytes,2,rep,name=message_ids" json:"message_ids,omitempty"`
}

func (m *ControlIHave) Reset()         { *m = ControlIHave{} }
func (m *ControlIHave) String() string { return proto.CompactTextString(m) }
func (*ControlIHave) ProtoMessage()    {}

func (m *ControlIHave) GetTopicID() string {
	if m != nil {
		return m.TopicID
	}
	return ""
}

func (m *ControlIHave) GetMessageIDs() []string {
	if m != nil {
		return m.MessageIDs
	}
	return nil
}

// ControlIWant requests transmission of messages announced via ControlIHave.
type ControlIWant struct {
	MessageIDs []string `protobuf:"bytes,1,rep,name=message_ids" json:"message_ids,omitempty"`
}

func (m *ControlIWant) Reset()         { *m = ControlIWant{} }
func (m *ControlIWant) String() string { return proto.CompactTextString(m) }
func (*ControlIWant) ProtoMessage()    {}

func (m *ControlIWant) GetMessageIDs() []string {
	if m != nil {
		return m.MessageIDs
	}
	return nil
}

// ControlGraft notifies a peer it has been added to the local mesh view of a topic.
type ControlGraft struct {
	TopicID string `protobuf:"bytes,1,opt,name=topic_id" json:"topic_id"`
}

func (m *ControlGraft) Reset()         { *m = ControlGraft{} }
func (m *ControlGraft) String() string { return proto.CompactTextString(m) }
func (*ControlGraft) ProtoMessage()    {}

func (m *ControlGraft) GetTopicID() string {
	if m != nil {
		return m.TopicID
	}
	return ""
}

// ControlPrune notifies a peer it has been removed from the local mesh view of a topic.
type ControlPrune struct {
	TopicID string `protobuf:"bytes,1,opt,name=topic_id" json:"topic_id"`
}

func (m *ControlPrune) Reset()         { *m = ControlPrune{} }
func (m *ControlPrune) String() string { return proto.CompactTextString(m) }
func (*ControlPrune) ProtoMessage()    {}

func (m *ControlPrune) GetTopicID() string {
	if m != nil {
		return m.TopicID
	}
	return ""
}

// GossipCodec encodes/decodes RPC frames via gogo/protobuf's reflection-based
// Marshal/Unmarshal, treating the wire format as opaque per spec.md's scope.
type GossipCodec struct{}

func (GossipCodec) Encode(rpc *RPC) ([]byte, error) {
	return proto.Marshal(rpc)
}

func (GossipCodec) Decode(data []byte) (*RPC, error) {
	rpc := &RPC{}
	if err := proto.Unmarshal(data, rpc); err != nil {
		return nil, err
	}
	return rpc, nil
}

// MessageForHash returns a copy of m with signature/key fields absent (they
// are not modeled), suitable for hashing per spec.md §6.
func MessageForHash(m *Message) *Message {
	return &Message{
		From:     m.From,
		Data:     m.Data,
		Seqno:    m.Seqno,
		TopicIDs: m.TopicIDs,
	}
}
