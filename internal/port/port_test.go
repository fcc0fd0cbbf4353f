package port

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeReadByteNonBlocking(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewBufferString("\xB5\x62")
	p := NewPipe(in, &out)

	b, ok := p.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(0xB5), b)

	b, ok = p.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(0x62), b)

	_, ok = p.ReadByte()
	assert.False(t, ok, "ReadByte must not block when nothing is buffered")
}

func TestPipeWriteAllAndBaud(t *testing.T) {
	var out bytes.Buffer
	p := NewPipe(bytes.NewReader(nil), &out)

	require.NoError(t, p.WriteAll([]byte("$PUBX,41,1,0003,0001,115200,0*1E\r\n")))
	assert.Contains(t, out.String(), "PUBX,41")

	require.NoError(t, p.SetBaud(115200))
	assert.Equal(t, 115200, p.Baud())
	assert.True(t, p.TxBufferEmpty())
}

func TestPipeBytesWaiting(t *testing.T) {
	in := bytes.NewBufferString("abc")
	p := NewPipe(in, &bytes.Buffer{})

	assert.Equal(t, 0, p.BytesWaiting())
	b, ok := p.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte('a'), b)
	assert.Equal(t, 2, p.BytesWaiting())
}
