// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EnvelopeType discriminates the messages workers and the coordinator
// exchange.
type EnvelopeType uint8

const (
	// EnvelopeShardAssignment carries a worker's identity shard.
	EnvelopeShardAssignment EnvelopeType = iota + 1
	// EnvelopeTokenUpdate carries one token ledger update.
	EnvelopeTokenUpdate
	// EnvelopeFatalStop tells every worker to halt the run.
	EnvelopeFatalStop
)

// Envelope is the wire frame for coordination messages: a type tag and
// a CBOR-encoded payload. CBOR keeps frames compact when thousands of
// token updates stream during a large run.
type Envelope struct {
	Type    EnvelopeType    `cbor:"1,keyasint"`
	Payload cbor.RawMessage `cbor:"2,keyasint"`
}

// ShardAssignment is the payload of EnvelopeShardAssignment.
type ShardAssignment struct {
	Worker    int      `cbor:"1,keyasint"`
	Workers   int      `cbor:"2,keyasint"`
	Usernames []string `cbor:"3,keyasint"`
}

// FatalStop is the payload of EnvelopeFatalStop.
type FatalStop struct {
	Reason string `cbor:"1,keyasint"`
}

// encMode is the deterministic CBOR encoder shared by all envelope
// marshaling.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("coordinator: cbor encoder init: %v", err))
	}
}

// Seal wraps a payload in an envelope of the given type.
func Seal(envelopeType EnvelopeType, payload any) (Envelope, error) {
	encoded, err := encMode.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("coordinator: failed to encode %d payload: %w", envelopeType, err)
	}
	return Envelope{Type: envelopeType, Payload: encoded}, nil
}

// Open decodes an envelope payload into out (a pointer), checking the
// type tag first.
func Open(envelope Envelope, want EnvelopeType, out any) error {
	if envelope.Type != want {
		return fmt.Errorf("coordinator: envelope type %d, want %d", envelope.Type, want)
	}
	if err := cbor.Unmarshal(envelope.Payload, out); err != nil {
		return fmt.Errorf("coordinator: failed to decode %d payload: %w", envelope.Type, err)
	}
	return nil
}

// EncodeEnvelope serializes an envelope for transport.
func EncodeEnvelope(envelope Envelope) ([]byte, error) {
	data, err := encMode.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope deserializes an envelope from transport bytes.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := cbor.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("coordinator: failed to decode envelope: %w", err)
	}
	return envelope, nil
}

// Messenger moves envelopes between a worker and the coordinator. The
// in-process runner uses ChannelMessenger; a multi-host deployment
// would implement this over its transport of choice.
type Messenger interface {
	// Send delivers an envelope to the peer. It blocks until the peer
	// accepts it or ctx is done.
	Send(ctx context.Context, envelope Envelope) error
	// Receive returns the channel of inbound envelopes. The channel is
	// closed when the peer shuts down.
	Receive() <-chan Envelope
}

// ChannelMessenger is an in-process Messenger over Go channels. Pair
// returns the two connected halves.
type ChannelMessenger struct {
	out chan<- Envelope
	in  <-chan Envelope
}

// Pair creates two connected ChannelMessengers with the given buffer
// depth per direction.
func Pair(buffer int) (*ChannelMessenger, *ChannelMessenger) {
	aToB := make(chan Envelope, buffer)
	bToA := make(chan Envelope, buffer)
	a := &ChannelMessenger{out: aToB, in: bToA}
	b := &ChannelMessenger{out: bToA, in: aToB}
	return a, b
}

// Send implements Messenger.
func (m *ChannelMessenger) Send(ctx context.Context, envelope Envelope) error {
	select {
	case m.out <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Messenger.
func (m *ChannelMessenger) Receive() <-chan Envelope {
	return m.in
}

// Close closes this half's outbound channel. The peer's Receive
// channel sees the close.
func (m *ChannelMessenger) Close() {
	close(m.out)
}
