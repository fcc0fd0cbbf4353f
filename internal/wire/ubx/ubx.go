// Package ubx implements the UBX binary frame parser of spec.md §4.C: a
// byte-fed, resynchronising state machine over u-blox's `0xB5 0x62 | class |
// id | len(LE,2) | payload | ckA ckB` framing, with an 8-bit Fletcher
// checksum over class..payload.
//
// It is grounded on the teacher's internal/parser/ubx.go UBXParser.Process,
// generalized from whole-buffer length-prefixed slicing into the explicit
// byte-at-a-time state machine the resync edge cases require — those edge
// cases cannot be expressed once a full buffer has already been sliced.
package ubx

const (
	preamble1 = 0xB5
	preamble2 = 0x62

	// maxPayload is sized for UBX-NAV-SAT at 32 channels: 8 + 12*32 = 392
	// bytes, plus slack for other message types sharing the capture buffer.
	maxPayload = 392 + 16

	// maxSanityPayload is the upper bound past which a payload length is
	// treated as corrupted framing rather than a real message.
	maxSanityPayload = 776
)

type state int

const (
	stateSync1 state = iota
	stateSync2
	stateClass
	stateID
	stateLenLSB
	stateLenMSB
	statePayload
	stateCksumA
	stateCksumB
)

// Frame is one fully validated UBX message, handed to the interpreter.
type Frame struct {
	Class   byte
	ID      byte
	Length  uint16 // advertised payload length, may exceed len(Payload)
	Payload []byte // up to maxPayload bytes actually captured
}

// Decoder is a byte-at-a-time UBX frame decoder. It owns no I/O; callers
// feed it bytes one at a time via Feed and receive a complete Frame when
// framing and checksum both validate.
type Decoder struct {
	st state

	cksumA, cksumB byte

	class, id     byte
	length        uint16
	payloadCursor uint16
	payload       [maxPayload]byte

	framesOK  uint64
	framesBad uint64
}

// NewDecoder returns a Decoder ready to receive bytes starting at SYNC1.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// FramesOK returns the count of checksum-valid frames decoded so far.
func (d *Decoder) FramesOK() uint64 { return d.framesOK }

// FramesBad returns the count of frames abandoned to a framing or checksum
// error (oversize length, bad CKA, bad CKB).
func (d *Decoder) FramesBad() uint64 { return d.framesBad }

// Feed advances the state machine by one byte. It returns a non-nil *Frame
// exactly when this byte completes a checksum-valid message.
func (d *Decoder) Feed(b byte) *Frame {
	switch d.st {
	case stateSync1:
		if b == preamble1 {
			d.st = stateSync2
		}
		return nil

	case stateSync2:
		if b == preamble2 {
			d.st = stateClass
			return nil
		}
		// A repeated preamble1 byte is not a false start: stay ready for
		// SYNC2 rather than dropping back to SYNC1.
		if b != preamble1 {
			d.st = stateSync1
		}
		return nil

	case stateClass:
		d.cksumA = b
		d.cksumB = b
		d.class = b
		d.st = stateID
		return nil

	case stateID:
		d.cksumA += b
		d.cksumB += d.cksumA
		d.id = b
		d.st = stateLenLSB
		return nil

	case stateLenLSB:
		d.cksumA += b
		d.cksumB += d.cksumA
		d.length = uint16(b)
		d.st = stateLenMSB
		return nil

	case stateLenMSB:
		d.cksumA += b
		d.cksumB += d.cksumA
		d.length += uint16(b) << 8
		if d.length == 0 {
			d.st = stateCksumA
			return nil
		}
		if d.length > maxSanityPayload {
			d.framesBad++
			d.resyncOn(b)
			return nil
		}
		d.payloadCursor = 0
		d.st = statePayload
		return nil

	case statePayload:
		d.cksumA += b
		d.cksumB += d.cksumA
		if d.payloadCursor < maxPayload {
			d.payload[d.payloadCursor] = b
		}
		d.payloadCursor++
		if d.payloadCursor >= d.length {
			d.st = stateCksumA
		}
		return nil

	case stateCksumA:
		if d.cksumA == b {
			d.st = stateCksumB
			return nil
		}
		d.framesBad++
		d.resyncOn(b)
		return nil

	case stateCksumB:
		if d.cksumB == b {
			d.framesOK++
			n := int(d.length)
			if n > maxPayload {
				n = maxPayload
			}
			f := &Frame{
				Class:   d.class,
				ID:      d.id,
				Length:  d.length,
				Payload: append([]byte(nil), d.payload[:n]...),
			}
			d.st = stateSync1
			return f
		}
		d.framesBad++
		d.resyncOn(b)
		return nil
	}
	return nil
}

// resyncOn applies the "if the offending byte is 0xB5, jump straight to
// SYNC2" shortcut shared by the oversize-length and both checksum-mismatch
// failure paths: an ordinary data byte that happens to equal the preamble
// value is far more likely to be the start of the next frame than noise.
func (d *Decoder) resyncOn(b byte) {
	if b == preamble1 {
		d.st = stateSync2
	} else {
		d.st = stateSync1
	}
}

// Fletcher8 computes the UBX checksum pair over class..payload, useful for
// building outbound commands (internal/configurator).
func Fletcher8(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode assembles a complete outbound UBX frame from class, id and payload.
func Encode(class, id byte, payload []byte) []byte {
	length := len(payload)
	buf := make([]byte, 0, 8+length)
	buf = append(buf, preamble1, preamble2, class, id, byte(length), byte(length>>8))
	buf = append(buf, payload...)
	ckA, ckB := Fletcher8(buf[2:])
	buf = append(buf, ckA, ckB)
	return buf
}
