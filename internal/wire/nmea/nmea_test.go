package nmea

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedLine(d *Decoder, line string) *Message {
	var last *Message
	for i := 0; i < len(line); i++ {
		if m := d.Feed(line[i]); m != nil {
			last = m
		}
	}
	return last
}

func checksumOf(body string) byte {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return c
}

func sentence(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, checksumOf(body))
}

func TestGGACompletesWithNewSolutionFields(t *testing.T) {
	// 123456.78 UTC, lat 4807.038N, lon 01131.000E, fix=1, 08 sats, hdop 0.9,
	// altitude 545.4,M — a standard GGA example sentence.
	body := "GPGGA,123456.78,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	d := NewDecoder()
	msg := feedLine(d, sentence(body))
	require.NotNil(t, msg)
	assert.Equal(t, KindGGA, msg.Kind)
	assert.True(t, msg.FixValid)
	assert.Equal(t, uint8(8), msg.NumSat)
	assert.Equal(t, int32(54540), msg.AltCm) // 545.4m -> 1 decimal kept -> 5454 -> *10
	assert.Positive(t, msg.LatDeg7)
	assert.Positive(t, msg.LonDeg7)
}

func TestGGANoFixOmitsPositionFields(t *testing.T) {
	body := "GPGGA,123456.78,4807.038,N,01131.000,E,0,00,,,,,,"
	d := NewDecoder()
	msg := feedLine(d, sentence(body))
	require.NotNil(t, msg)
	assert.False(t, msg.FixValid)
	assert.Zero(t, msg.LatDeg7)
	assert.Zero(t, msg.NumSat)
}

func TestRMCDoesNotSignalNewSolution(t *testing.T) {
	body := "GPRMC,123456.78,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	d := NewDecoder()
	msg := feedLine(d, sentence(body))
	require.NotNil(t, msg)
	assert.Equal(t, KindRMC, msg.Kind)
}

func TestGSADOPFields(t *testing.T) {
	body := "GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"
	d := NewDecoder()
	msg := feedLine(d, sentence(body))
	require.NotNil(t, msg)
	assert.Equal(t, KindGSA, msg.Kind)
	assert.Equal(t, uint16(250), msg.PDOP)
	assert.Equal(t, uint16(130), msg.HDOP)
	assert.Equal(t, uint16(210), msg.VDOP)
}

func TestBadChecksumIsDropped(t *testing.T) {
	body := "GPGGA,123456.78,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	line := fmt.Sprintf("$%s*%02X\r\n", body, checksumOf(body)^0xFF)
	d := NewDecoder()
	msg := feedLine(d, line)
	assert.Nil(t, msg)
}

// Coordinate round-trip property from the documented transform
// deg*10^7 + (min*10^5 + frac)*10/6 for deg=12, min=34.56789.
func TestCoordToDegreesRoundTrip(t *testing.T) {
	got := coordToDegrees([]byte("1234.56789"))
	want := int32(12*10000000 + (34*100000+56789)*10/6)
	assert.InDelta(t, want, got, 1)
}

func TestGrabFieldsTruncatesFractionalDigits(t *testing.T) {
	assert.Equal(t, int32(545), grabFields([]byte("545.4"), 0))
	assert.Equal(t, int32(5454), grabFields([]byte("545.4"), 1))
	assert.Equal(t, int32(-12), grabFields([]byte("-12.3"), 0))
}

func TestParseHHMMSSToMillis(t *testing.T) {
	assert.Equal(t, uint32(12*3600000+34*60000+56*1000+780), parseHHMMSSToMillis([]byte("123456.78")))
}
