package gossip

import "errors"

var (
	// ErrDecode marks a malformed or truncated inbound payload.
	ErrDecode = errors.New("gossip: malformed message")
	// ErrUnsetType is returned when encoding a message without a type.
	ErrUnsetType = errors.New("gossip: message type unset")
	// ErrProtocolViolation marks a message whose type is unset or unknown.
	ErrProtocolViolation = errors.New("gossip: protocol violation")
	// ErrEmptyParty is returned when a host is requested from an empty party.
	ErrEmptyParty = errors.New("gossip: party is empty")
	// ErrClosed is returned by transports after Close.
	ErrClosed = errors.New("gossip: transport closed")
	// ErrQueueFull is returned when a transport cannot accept another payload.
	ErrQueueFull = errors.New("gossip: transport queue full")
)
