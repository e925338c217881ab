package message

type (
	// The Flags type is a named view of the two flag bytes found at offset 2 of every DNS message header. Field
	// names follow those of dns.MsgHdr.
	Flags struct {
		Response           bool // QR
		Opcode             int
		Authoritative      bool // AA
		Truncated          bool // TC
		RecursionDesired   bool // RD
		RecursionAvailable bool // RA
		Zero               bool // Z
		AuthenticatedData  bool // AD
		CheckingDisabled   bool // CD
		Rcode              int
	}
)

const (
	bitQR = 1 << 7
	bitAA = 1 << 2
	bitTC = 1 << 1
	bitRD = 1 << 0

	bitRA = 1 << 7
	bitZ  = 1 << 6
	bitAD = 1 << 5
	bitCD = 1 << 4

	opcodeShift = 3
	opcodeMask  = 0x0f
	rcodeMask   = 0x0f
)

// ParseFlags decodes the header flag bytes.
func ParseFlags(b [2]byte) Flags {
	return Flags{
		Response:           b[0]&bitQR != 0,
		Opcode:             int(b[0]>>opcodeShift) & opcodeMask,
		Authoritative:      b[0]&bitAA != 0,
		Truncated:          b[0]&bitTC != 0,
		RecursionDesired:   b[0]&bitRD != 0,
		RecursionAvailable: b[1]&bitRA != 0,
		Zero:               b[1]&bitZ != 0,
		AuthenticatedData:  b[1]&bitAD != 0,
		CheckingDisabled:   b[1]&bitCD != 0,
		Rcode:              int(b[1]) & rcodeMask,
	}
}

// Bytes encodes the flags into their wire representation. Only the lower four bits of Opcode and Rcode are used,
// extended rcodes live in the OPT record and are not represented here.
func (f Flags) Bytes() [2]byte {
	var b [2]byte

	b[0] = byte(f.Opcode&opcodeMask) << opcodeShift
	b[0] |= bit(f.Response, bitQR)
	b[0] |= bit(f.Authoritative, bitAA)
	b[0] |= bit(f.Truncated, bitTC)
	b[0] |= bit(f.RecursionDesired, bitRD)

	b[1] = byte(f.Rcode & rcodeMask)
	b[1] |= bit(f.RecursionAvailable, bitRA)
	b[1] |= bit(f.Zero, bitZ)
	b[1] |= bit(f.AuthenticatedData, bitAD)
	b[1] |= bit(f.CheckingDisabled, bitCD)

	return b
}

// HeaderFlags returns the flags of msg. The caller must ensure msg is at least four bytes long.
func HeaderFlags(msg []byte) Flags {
	return ParseFlags([2]byte{msg[flagsOffset], msg[flagsOffset+1]})
}

// SetHeaderFlags overwrites the flags of msg in place. The caller must ensure msg is at least four bytes long.
func SetHeaderFlags(msg []byte, f Flags) {
	b := f.Bytes()
	copy(msg[flagsOffset:], b[:])
}

func bit(set bool, mask byte) byte {
	if set {
		return mask
	}

	return 0
}
