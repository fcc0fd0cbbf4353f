package ubx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(d *Decoder, data []byte) []*Frame {
	var out []*Frame
	for _, b := range data {
		if f := d.Feed(b); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func TestDecodeSimpleFrame(t *testing.T) {
	frame := Encode(0x0A, 0x04, []byte{1, 2, 3, 4})
	d := NewDecoder()
	got := feedAll(d, frame)
	require.Len(t, got, 1)
	assert.Equal(t, byte(0x0A), got[0].Class)
	assert.Equal(t, byte(0x04), got[0].ID)
	assert.Equal(t, []byte{1, 2, 3, 4}, got[0].Payload)
	assert.Equal(t, uint64(1), d.FramesOK())
}

// Scenario 2 from spec.md §8: a repeated preamble1 byte must not restart
// parsing at SYNC1 — it should be treated as a fresh SYNC1 already matched,
// staying ready for SYNC2.
func TestBadPreambleByteResyncsOnRepeatedSync1(t *testing.T) {
	navPVT := Encode(0x01, 0x07, make([]byte, 92))
	withExtraPreamble := append([]byte{0xB5}, navPVT...)

	d := NewDecoder()
	got := feedAll(d, withExtraPreamble)
	require.Len(t, got, 1)
	assert.Equal(t, byte(0x01), got[0].Class)
	assert.Equal(t, byte(0x07), got[0].ID)
	assert.Equal(t, uint64(1), d.FramesOK())
	assert.Equal(t, uint64(0), d.FramesBad())
}

// Scenario 3 from spec.md §8: an oversize declared length abandons the
// frame without corrupting state, and the next valid frame still decodes.
func TestOversizeLengthAbandonsFrameCleanly(t *testing.T) {
	bogus := []byte{0xB5, 0x62, 0x01, 0x07, 0xFF, 0xFF}
	good := Encode(0x01, 0x07, make([]byte, 4))

	d := NewDecoder()
	_ = feedAll(d, bogus)
	assert.Equal(t, uint64(1), d.FramesBad())

	got := feedAll(d, good)
	require.Len(t, got, 1)
	assert.Equal(t, byte(0x01), got[0].Class)
	assert.Equal(t, uint64(1), d.FramesOK())
}

func TestChecksumMismatchResyncsOnPreambleByte(t *testing.T) {
	good := Encode(0x01, 0x07, []byte{9, 9})
	corrupted := append([]byte(nil), good...)
	corrupted[len(corrupted)-2] = 0xB5 // corrupt CKA with a preamble-valued byte

	d := NewDecoder()
	got := feedAll(d, corrupted[:len(corrupted)-1]) // stop right after the corrupted CKA byte
	assert.Empty(t, got)
	assert.Equal(t, uint64(1), d.FramesBad())
	// after resyncOn(0xB5) the decoder expects SYNC2 next
	assert.Equal(t, stateSync2, d.st)
}

func TestPayloadLongerThanCaptureBufferStillChecksums(t *testing.T) {
	huge := make([]byte, maxPayload+50)
	for i := range huge {
		huge[i] = byte(i)
	}
	frame := Encode(0x01, 0x35, huge)

	d := NewDecoder()
	got := feedAll(d, frame)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(len(huge)), got[0].Length)
	assert.Len(t, got[0].Payload, maxPayload)
}

func TestFletcher8MatchesEncodeDecodeRoundTrip(t *testing.T) {
	frame := Encode(0x06, 0x3E, []byte{1, 2, 3})
	ckA, ckB := Fletcher8(frame[2 : len(frame)-2])
	assert.Equal(t, frame[len(frame)-2], ckA)
	assert.Equal(t, frame[len(frame)-1], ckB)
}
