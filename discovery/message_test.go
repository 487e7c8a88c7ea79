package discovery

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    MessageType
	}{
		{"search", []byte("SEARCH"), MessageSearch},
		{"ping", []byte("PING"), MessagePing},
		{"pong", []byte("PONG"), MessagePong},
		{"lowercase", []byte("ping"), MessageUnknown},
		{"trailing newline", []byte("PING\n"), MessageUnknown},
		{"trailing nul", []byte("PONG\x00"), MessageUnknown},
		{"empty", nil, MessageUnknown},
		{"invalid utf8", []byte{0xc3, 0x28}, MessageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.payload); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	for _, m := range []MessageType{MessageSearch, MessagePing, MessagePong} {
		if got := Classify(m.Payload()); got != m {
			t.Errorf("Classify(%s.Payload()) = %v", m, got)
		}
	}
	if MessageUnknown.Payload() != nil {
		t.Error("Unknown message must not have a payload")
	}
}
