package hwaddr

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
)

const Size = 6

var ErrorInvalidAddrString = errors.New("invalid hardware address string")
var ErrorInvalidAddrFormat = errors.New("invalid hardware address format")

// Addr is a fixed-width link-layer address. It is comparable and can be used as a map key.
// Addr implements the MarshalBinary and UnmarshalBinary interfaces to assist CBOR encoding.
type Addr [Size]byte

// Broadcast is the reserved destination of discovery-class frames.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (a Addr) String() string {
	var sb strings.Builder
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

func (a Addr) IsBroadcast() bool {
	return a == Broadcast
}

func (a Addr) MarshalBinary() ([]byte, error) {
	return a[:], nil
}

func (a *Addr) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrorInvalidAddrFormat
	}
	copy(a[:], data)
	return nil
}

func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Addr) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Addr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return a.UnmarshalText([]byte(s))
}

// FromString parses the colon separated hex form, e.g. "24:0a:c4:12:34:56".
func FromString(s string) (Addr, error) {
	var a Addr
	parts := strings.Split(s, ":")
	if len(parts) != Size {
		return a, ErrorInvalidAddrString
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, ErrorInvalidAddrString
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return a, ErrorInvalidAddrString
		}
		a[i] = b[0]
	}
	return a, nil
}

func FromStringMustParse(s string) Addr {
	a, err := FromString(s)
	if err != nil {
		log.Fatalf("Failed to parse hardware address: %v", err)
	}
	return a
}

// Random crafts a unicast, locally administered address.
func Random() (Addr, error) {
	var a Addr
	if _, err := rand.Read(a[:]); err != nil {
		return a, err
	}
	a[0] = (a[0] | 0x02) &^ 0x01
	return a, nil
}
