package remote

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/pkg/timestamp"
)

// Tag identifies the kind of wire message inside an envelope.
type Tag string

// Wire message tags.
const (
	TagProbe         Tag = "probe"
	TagProbeResult   Tag = "probe-result"
	TagSessionOpen   Tag = "session-open"
	TagSessionOpened Tag = "session-opened"
	TagFrameRequest  Tag = "frame-request"
	TagFrameResult   Tag = "frame-result"
	TagSessionEnd    Tag = "session-end"
	TagDeviceLost    Tag = "device-lost"
	TagError         Tag = "error"
)

// Envelope frames every message on the wire. Seq increases by one per
// envelope within a stream so the receiving side can detect reordering
// or loss and fail the session rather than deliver stale frames.
type Envelope struct {
	Tag     Tag             `json:"tag"`
	Seq     uint64          `json:"seq"`
	Session string          `json:"session,omitempty"`
	Time    int64           `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the envelope payload.
func (e *Envelope) Decode(into any) error {
	if len(e.Payload) == 0 {
		return errors.WrapInvalid(errors.ErrProtocolBroken, "remote", "Decode", "decoding an empty payload")
	}
	if err := json.Unmarshal(e.Payload, into); err != nil {
		return errors.WrapInvalid(err, "remote", "Decode", "decoding envelope payload")
	}
	return nil
}

// sequencer stamps outgoing envelopes with increasing sequence numbers.
type sequencer struct {
	next atomic.Uint64
}

// envelope builds the next outgoing envelope for a stream.
func (s *sequencer) envelope(tag Tag, session string, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, errors.WrapInvalid(err, "remote", "envelope", "encoding payload")
		}
		raw = data
	}
	return Envelope{
		Tag:     tag,
		Seq:     s.next.Add(1),
		Session: session,
		Time:    timestamp.Now(),
		Payload: raw,
	}, nil
}

// sequenceGuard verifies incoming envelope sequence numbers only ever
// move forward within a stream.
type sequenceGuard struct {
	mu   sync.Mutex
	last uint64
}

// check admits an envelope or reports a protocol violation. Gaps are
// tolerated (the transport may drop), regressions are not.
func (g *sequenceGuard) check(e Envelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.Seq <= g.last {
		return errors.WrapFatal(errors.ErrProtocolBroken, "remote", "check",
			fmt.Sprintf("envelope sequence regressed from %d to %d", g.last, e.Seq))
	}
	g.last = e.Seq
	return nil
}

// encode marshals an envelope for the wire.
func encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "remote", "encode", "encoding envelope")
	}
	return data, nil
}

// decode unmarshals an envelope from the wire.
func decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.WrapInvalid(errors.ErrProtocolBroken, "remote", "decode", "parsing envelope")
	}
	if e.Tag == "" {
		return Envelope{}, errors.WrapInvalid(errors.ErrProtocolBroken, "remote", "decode", "envelope missing tag")
	}
	return e, nil
}
