// Package message provides functions that operate directly on raw DNS messages as they arrive from clients. It
// extracts the queried hostname and synthesizes NXDOMAIN responses without decoding the message in full, so that the
// bytes that are relayed upstream or returned to the client are exactly the bytes that were received.
package message

// Throughout this package are comments that link specific behavior to DNS-related RFCs. These RFCs can be read at:
// * RFC-1035 (Core DNS): 			https://www.rfc-editor.org/rfc/rfc1035.html
// * RFC-4035 (DNSSEC signaling): 	https://www.rfc-editor.org/rfc/rfc4035.html
import (
	"bytes"
	"encoding/binary"
	"slices"
	"unicode/utf8"

	"github.com/miekg/dns"
)

const (
	// HeaderSize is the size of the fixed DNS message header in bytes.
	HeaderSize = 12

	flagsOffset   = 2
	qdCountOffset = 4
)

// Hostname returns the name queried by the single question contained within msg. The name is returned without its
// trailing dot, so a query for "mail.google.com." returns "mail.google.com".
func Hostname(msg []byte) (string, error) {
	if len(msg) < qdCountOffset+2 {
		return "", ErrUnexpectedReadLength
	}

	// RFC-1035 (4.1.2): While the protocol allows multiple questions per message, we only support exactly one.
	if binary.BigEndian.Uint16(msg[qdCountOffset:]) != 1 {
		return "", ErrTooManyQuestions
	}

	// RFC-1035 (4.1.2): QNAME is a sequence of labels, each prefixed with its length, terminated by the zero length
	// label of the root.
	var name []byte
	offset := HeaderSize
	for {
		if offset >= len(msg) {
			return "", ErrUnexpectedReadLength
		}

		length := int(msg[offset])
		offset++

		if length == 0 {
			break
		}

		if offset+length > len(msg) {
			return "", ErrUnexpectedReadLength
		}

		name = append(name, msg[offset:offset+length]...)
		name = append(name, '.')
		offset += length
	}

	name = bytes.TrimSuffix(name, []byte("."))
	if !utf8.Valid(name) {
		return "", ErrStringEncoding
	}

	return string(name), nil
}

// NXDomain returns a copy of req converted into an NXDOMAIN response. The transaction id and question section are
// left untouched so that the client can match the response to its query.
func NXDomain(req []byte) ([]byte, error) {
	if len(req) < flagsOffset+2 {
		return nil, ErrUnexpectedReadLength
	}

	// RFC-1035 (4.1.1): Every NXDOMAIN reply carries the same flags, a standard query response with RD and RA set.
	// RFC-4035 (3.2.3): AD and CD are left clear as we perform no validation.
	flags := Flags{
		Response:           true,
		Opcode:             dns.OpcodeQuery,
		RecursionDesired:   true,
		RecursionAvailable: true,
		Rcode:              dns.RcodeNameError,
	}

	resp := slices.Clone(req)
	SetHeaderFlags(resp, flags)

	return resp, nil
}
