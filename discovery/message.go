package discovery

import "unicode/utf8"

type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageSearch
	MessagePing
	MessagePong
)

var (
	payloadSearch = []byte("SEARCH")
	payloadPing   = []byte("PING")
	payloadPong   = []byte("PONG")
)

func (m MessageType) String() string {
	switch m {
	case MessageSearch:
		return "SEARCH"
	case MessagePing:
		return "PING"
	case MessagePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Payload returns the wire bytes of a recognized message, nil otherwise.
func (m MessageType) Payload() []byte {
	switch m {
	case MessageSearch:
		return payloadSearch
	case MessagePing:
		return payloadPing
	case MessagePong:
		return payloadPong
	default:
		return nil
	}
}

// Classify maps a payload to its message type. Payloads that are not valid UTF-8 or do not
// match a tag exactly are MessageUnknown.
func Classify(payload []byte) MessageType {
	if !utf8.Valid(payload) {
		return MessageUnknown
	}
	switch string(payload) {
	case "SEARCH":
		return MessageSearch
	case "PING":
		return MessagePing
	case "PONG":
		return MessagePong
	default:
		return MessageUnknown
	}
}
