// Package frame implements the length-prefixed framing used to carry DNS messages over stream transports such as
// DNS-over-TLS. Each frame is a two byte, big-endian length followed by exactly that many bytes of DNS message.
package frame

// RFC-7858 (3.3): DNS-over-TLS messages use the two byte length field defined for TCP in RFC-1035 (4.2.2).
import (
	"encoding/binary"
	"io"
	"math"
	"slices"
)

const (
	// PrefixSize is the number of bytes used for the length prefix.
	PrefixSize = 2
	// MaxPayloadSize is the largest payload a single frame can describe.
	MaxPayloadSize = math.MaxUint16
)

// Serialize prefixes payload with its length.
func Serialize(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return nil, ErrBadInputData
	}

	out := make([]byte, PrefixSize, PrefixSize+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(payload)))

	return append(out, payload...), nil
}

// Deserialize returns the payload contained within frame. The declared length must match the number of bytes that
// follow the prefix exactly.
func Deserialize(frame []byte) ([]byte, error) {
	// Anything shorter than a prefix and a single byte of payload cannot be a frame.
	if len(frame) < PrefixSize+1 {
		return nil, &Error{Kind: KindProtocolSizeMismatch, Err: errTooSmall}
	}

	size := int(binary.BigEndian.Uint16(frame))
	payload := frame[PrefixSize:]
	if size != len(payload) {
		return nil, ErrProtocolSizeMismatch
	}

	return slices.Clone(payload), nil
}

// Read a single frame from r, returning its payload. Frames declaring a payload larger than limit are rejected
// before any of the payload is read.
func Read(r io.Reader, limit int) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	size := int(binary.BigEndian.Uint16(prefix[:]))
	if size > limit {
		return nil, ErrMessageTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	return payload, nil
}
