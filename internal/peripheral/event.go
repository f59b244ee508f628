package peripheral

import (
	"fmt"

	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// State is the transfer manager state.
type State int

// Transfer manager states. The three sending states track the kind of the
// pending frame.
const (
	StatePoweredOff State = iota
	StateAdvertising
	StateSubscribed
	StateSendingStart
	StateSendingChunks
	StateSendingEnd
)

func (s State) String() string {
	switch s {
	case StatePoweredOff:
		return "powered-off"
	case StateAdvertising:
		return "advertising"
	case StateSubscribed:
		return "subscribed"
	case StateSendingStart:
		return "sending-start"
	case StateSendingChunks:
		return "sending-chunks"
	case StateSendingEnd:
		return "sending-end"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sending reports whether an outbound transfer is in flight.
func (s State) Sending() bool {
	return s == StateSendingStart || s == StateSendingChunks || s == StateSendingEnd
}

func stateFor(k protocol.FrameKind) State {
	switch k {
	case protocol.FrameStart:
		return StateSendingStart
	case protocol.FrameEnd:
		return StateSendingEnd
	default:
		return StateSendingChunks
	}
}

// Event is delivered to the consumer's Handler.
type Event interface {
	event()
}

// Handler consumes manager events. It runs without the manager lock held.
type Handler func(Event)

// StateChanged reports a transfer manager state transition.
type StateChanged struct {
	State State
}

// Ready reports a subscriber and the frame limit negotiated for it.
type Ready struct {
	Central    string
	FrameLimit int
}

// Received carries one reassembled inbound value.
type Received struct {
	Value []byte
}

// Sent reports a completed outbound transfer.
type Sent struct {
	Bytes  int
	Frames int
}

// Failed carries a *ble.NotPoweredOnError, ble.ErrNoValue or a wrapped
// advertising error.
type Failed struct {
	Err error
}

func (StateChanged) event() {}
func (Ready) event()        {}
func (Received) event()     {}
func (Sent) event()         {}
func (Failed) event()       {}
