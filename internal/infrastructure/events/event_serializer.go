package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/errors"
)

// The backend pushes events through Socket.IO (protocol v5) carried by
// Engine.IO v4 over a websocket. Every websocket text frame is one Engine.IO
// packet: a type digit followed by its payload. Socket.IO packets travel
// inside Engine.IO message packets.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'

	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketAck          = '3'
	socketConnectError = '4'
	socketBinaryEvent  = '5'
	socketBinaryAck    = '6'
)

// Packets the client writes
var (
	// ConnectPacket joins the default namespace
	ConnectPacket = []byte{engineMessage, socketConnect}
	PongPacket    = []byte{enginePong}
	// PingPacket is what the server sends; clients answer with PongPacket
	PingPacket = []byte{enginePing}
)

// FrameKind classifies a decoded packet
type FrameKind int

const (
	FrameIgnored FrameKind = iota
	FrameOpen
	FramePing
	FrameClose
	FrameConnected
	FrameConnectError
	FrameDisconnect
	FrameEvent
)

// Handshake is the payload of the Engine.IO open packet. Intervals are in
// milliseconds.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload,omitempty"`
}

// ReadTimeout is how long the client may go without hearing from the
// server before the connection is considered dead.
func (h Handshake) ReadTimeout() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// Frame is one decoded packet
type Frame struct {
	Kind      FrameKind
	Handshake Handshake
	// Event name and arguments, for FrameEvent
	Event string
	Args  []json.RawMessage
	// Reason carried by FrameConnectError
	Reason string
}

// ParseFrame decodes one websocket text frame. Packets this client has no
// use for (noop, upgrade, acks, binary events, foreign namespaces) come back
// as FrameIgnored.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.NewValidationError("EMPTY_FRAME", "empty frame")
	}

	switch data[0] {
	case engineOpen:
		var h Handshake
		if err := json.Unmarshal(data[1:], &h); err != nil {
			return Frame{}, errors.NewValidationError("INVALID_HANDSHAKE", "failed to decode open packet").WithCause(err)
		}
		return Frame{Kind: FrameOpen, Handshake: h}, nil
	case engineClose:
		return Frame{Kind: FrameClose}, nil
	case enginePing:
		return Frame{Kind: FramePing}, nil
	case enginePong, engineUpgrade, engineNoop:
		return Frame{Kind: FrameIgnored}, nil
	case engineMessage:
		return parseSocketPacket(data[1:])
	}
	return Frame{}, errors.NewValidationError("UNKNOWN_PACKET",
		fmt.Sprintf("unknown packet type %q", data[0]))
}

func parseSocketPacket(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.NewValidationError("EMPTY_MESSAGE", "message packet without payload")
	}
	kind, rest := data[0], data[1:]

	if kind == socketBinaryEvent || kind == socketBinaryAck {
		return Frame{Kind: FrameIgnored}, nil
	}

	// optional "/namespace," prefix; only the default namespace is joined
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		nsp := rest
		if end >= 0 {
			nsp, rest = rest[:end], rest[end+1:]
		} else {
			rest = nil
		}
		if string(nsp) != "/" {
			return Frame{Kind: FrameIgnored}, nil
		}
	}

	switch kind {
	case socketConnect:
		return Frame{Kind: FrameConnected}, nil
	case socketDisconnect:
		return Frame{Kind: FrameDisconnect}, nil
	case socketConnectError:
		var payload struct {
			Message string `json:"message"`
		}
		reason := string(rest)
		if json.Unmarshal(rest, &payload) == nil && payload.Message != "" {
			reason = payload.Message
		}
		return Frame{Kind: FrameConnectError, Reason: reason}, nil
	case socketAck:
		return Frame{Kind: FrameIgnored}, nil
	case socketEvent:
		return parseEvent(rest)
	}
	return Frame{}, errors.NewValidationError("UNKNOWN_PACKET",
		fmt.Sprintf("unknown socket packet type %q", kind))
}

func parseEvent(data []byte) (Frame, error) {
	// an ack id may precede the argument array
	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}

	var args []json.RawMessage
	if err := json.Unmarshal(data[i:], &args); err != nil {
		return Frame{}, errors.NewValidationError("INVALID_EVENT", "failed to decode event arguments").WithCause(err)
	}
	if len(args) == 0 {
		return Frame{}, errors.NewValidationError("INVALID_EVENT", "event without a name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return Frame{}, errors.NewValidationError("INVALID_EVENT", "event name is not a string").WithCause(err)
	}
	return Frame{Kind: FrameEvent, Event: name, Args: args[1:]}, nil
}

// TransactionUpdate decodes the payload of a transaction_update event
func (f Frame) TransactionUpdate() (transaction.Event, error) {
	if len(f.Args) == 0 || string(f.Args[0]) == "null" {
		return transaction.Event{}, errors.NewValidationError("EMPTY_EVENT_DATA", "transaction_update without data")
	}
	var e transaction.Event
	if err := json.Unmarshal(f.Args[0], &e); err != nil {
		return transaction.Event{}, errors.NewValidationError("DESERIALIZATION_FAILED", "failed to deserialize event data").WithCause(err)
	}
	return e, nil
}

// EncodeOpen builds the open packet a server sends first
func EncodeOpen(h Handshake) ([]byte, error) {
	payload, err := json.Marshal(h)
	if err != nil {
		return nil, errors.NewInternalError("failed to serialize handshake").WithCause(err)
	}
	return append([]byte{engineOpen}, payload...), nil
}

// EncodeConnected builds the server's namespace connect acknowledgement
func EncodeConnected(sid string) []byte {
	return []byte(`40{"sid":` + strconv.Quote(sid) + `}`)
}

// EncodeEvent builds a default-namespace event packet
func EncodeEvent(name string, payload any) ([]byte, error) {
	args, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, errors.NewInternalError("failed to serialize event").WithCause(err)
	}
	return append([]byte{engineMessage, socketEvent}, args...), nil
}
