// Package rpc stands in for the real RPC payload schema, which spec.md §1
// explicitly treats as an external collaborator: a discriminated-union
// message format carrying one of many call variants plus a msg_id field. The
// link layer (package link) depends only on the Message/Reply/Codec
// interfaces here, never on GenericMessage directly, so a real schema
// implementation can be substituted without touching the scheduler.
package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MsgID correlates a request to its reply, per spec §1 and §6.
type MsgID = uint32

// Message is the host-to-device request contract the link layer needs: a
// mutable msg_id used for correlation and retransmit (spec §4.4, §4.6, §4.7).
// Serializing a Message to bytes is the Codec's job.
type Message interface {
	SetMsgID(id MsgID)
	ClearMsgID()
	HasMsgID() bool
	MsgIDValue() MsgID
}

// Reply is the device-to-host contract: a parsed reply exposes the msg_id it
// is answering, per spec §6 ("result.msg_id").
type Reply interface {
	ResultMsgID() MsgID
}

// Codec is the pluggable serializer spec §1 calls out as an external
// collaborator (serialize/parse). The link layer is generic over Codec.
type Codec interface {
	Serialize(msg Message) ([]byte, error)
	ParseReply(data []byte) (Reply, error)
}

// GenericMessage is a minimal concrete Message: a named variant plus a bag of
// arguments. It exists only so this module has something runnable to send —
// spec.md is explicit that the real schema is out of scope.
type GenericMessage struct {
	Variant string
	Args    map[string]any

	id    MsgID
	idSet bool
}

func (m *GenericMessage) SetMsgID(id MsgID)  { m.id = id; m.idSet = true }
func (m *GenericMessage) ClearMsgID()        { m.idSet = false }
func (m *GenericMessage) HasMsgID() bool     { return m.idSet }
func (m *GenericMessage) MsgIDValue() MsgID  { return m.id }

// GenericReply is the matching minimal concrete Reply.
type GenericReply struct {
	Variant  string
	Result   map[string]any
	ResultID MsgID
}

func (r *GenericReply) ResultMsgID() MsgID { return r.ResultID }

// wireMessage/wireReply are the CBOR-on-the-wire shape GenericMessage and
// GenericReply serialize to/from, mirroring the compact binary encoding
// librescoot-bluetooth-service uses for its own outbound payloads
// (github.com/fxamacker/cbor/v2) rather than a text format.
type wireMessage struct {
	Variant string         `cbor:"v"`
	Args    map[string]any `cbor:"a,omitempty"`
	MsgID   *MsgID         `cbor:"id,omitempty"`
}

type wireReply struct {
	Variant string         `cbor:"v"`
	Result  map[string]any `cbor:"r,omitempty"`
	MsgID   MsgID          `cbor:"id"`
}

// CBORCodec implements Codec over GenericMessage/GenericReply using
// github.com/fxamacker/cbor/v2, the same CBOR library
// librescoot-bluetooth-service marshals its own UART payloads with.
type CBORCodec struct{}

func (CBORCodec) Serialize(msg Message) ([]byte, error) {
	gm, ok := msg.(*GenericMessage)
	if !ok {
		return nil, fmt.Errorf("rpc: CBORCodec cannot serialize %T", msg)
	}
	w := wireMessage{Variant: gm.Variant, Args: gm.Args}
	if gm.idSet {
		id := gm.id
		w.MsgID = &id
	}
	return cbor.Marshal(w)
}

func (CBORCodec) ParseReply(data []byte) (Reply, error) {
	var w wireReply
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("rpc: parse reply: %w", err)
	}
	return &GenericReply{Variant: w.Variant, Result: w.Result, ResultID: w.MsgID}, nil
}
