package zkclient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []CommandHeader{
		{},
		{Command: CMD_CONNECT},
		{Command: CMD_ATTLOG, Checksum: 0x1234, SessionID: 42, ReplyID: 7},
		{Command: 0xFFFF, Checksum: 0xFFFF, SessionID: 0xFFFF, ReplyID: 0xFFFF},
		{Command: 0x8000, Checksum: 0x7FFF, SessionID: 0x8001, ReplyID: 1},
	}
	for _, c := range cases {
		buf, err := BuildHeader(c.Command, c.Checksum, c.SessionID, c.ReplyID)
		require.NoError(t, err)
		require.Len(t, buf, HeaderSize)

		got, err := ParseHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestBuildHeaderIsLittleEndian(t *testing.T) {
	buf, err := BuildHeader(CMD_CONNECT, 0x0102, 0x0304, 0x0506)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE8, 0x03, 0x02, 0x01, 0x04, 0x03, 0x06, 0x05}, buf)
}

func TestParseHeaderShortBuffer(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, err := ParseHeader(make([]byte, n))
		var fe *FramingError
		require.True(t, errors.As(err, &fe), "len %d", n)
		assert.Equal(t, n, fe.Got)
	}
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint16(0), Checksum(nil))
	assert.Equal(t, uint16(0), Checksum([]byte{}))
	assert.Equal(t, uint16(6), Checksum([]byte{1, 2, 3}))

	// 300 * 255 = 76500, which wraps past 65536
	big := make([]byte, 300)
	for i := range big {
		big[i] = 0xFF
	}
	assert.Equal(t, uint16(76500-65536), Checksum(big))

	// 256*255 + 255 + 1 = 65536 wraps to zero
	exact := make([]byte, 258)
	for i := 0; i < 257; i++ {
		exact[i] = 0xFF
	}
	exact[257] = 1
	assert.Equal(t, uint16(0), Checksum(exact))
}

func TestPacketChecksum(t *testing.T) {
	// CONNECT with zero session and reply id, as sent by other ZK clients
	head, err := BuildHeader(CMD_CONNECT, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(USHRT_MAX-CMD_CONNECT-1), packetChecksum(head))

	// odd length adds the last byte alone
	assert.Equal(t, uint16(USHRT_MAX-(CMD_CONNECT+5)-1), packetChecksum(append(head, 5)))
}

func TestParseConnectReply(t *testing.T) {
	id, err := parseConnectReply([]byte{0xAA, 0xAA, 0xBB, 0xBB, 0x2A, 0x00, 0xCC, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, uint16(42), id)

	id, err = parseConnectReply([]byte{0xD0, 0x07, 0, 0, 0x34, 0x12, 0, 0, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), id)

	_, err = parseConnectReply([]byte{0xD0, 0x07, 0, 0, 0x34})
	var fe *FramingError
	assert.True(t, errors.As(err, &fe))
}

func TestTCPTop(t *testing.T) {
	packet := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	framed, err := createTCPTop(packet)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x50, 0x82, 0x7d, 9, 0, 0, 0}, framed[:tcpTopSize])
	assert.Equal(t, len(packet), testTCPTop(framed))

	assert.Equal(t, 0, testTCPTop(packet))
	assert.Equal(t, 0, testTCPTop([]byte{0x50, 0x50}))
}

func TestUnpackUint32(t *testing.T) {
	v, err := unpackUint32([]byte{0x30, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(48), v)

	v, err = unpackUint32([]byte{0xFF, 0xFF, 0xFF, 0xFF, 9})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), v)

	_, err = unpackUint32([]byte{1, 2})
	assert.Error(t, err)
}

func TestCompactTime(t *testing.T) {
	want := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	got := decodeCompactTime(encodeCompactTime(want), time.UTC)
	assert.True(t, want.Equal(got), "got %s", got)

	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), decodeCompactTime(0, time.UTC))
}

func TestMakeCommKey(t *testing.T) {
	a, err := makeCommKey(0, 42, 50)
	require.NoError(t, err)
	require.Len(t, a, 4)

	b, err := makeCommKey(1234, 42, 50)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := makeCommKey(1234, 42, 50)
	require.NoError(t, err)
	assert.Equal(t, b, c)
}
