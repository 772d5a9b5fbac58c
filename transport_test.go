package zkclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFrameSplitsUnframedBytesAtTCPTop(t *testing.T) {
	raw, err := BuildHeader(CMD_ACK_OK, 0, 42, 1)
	require.NoError(t, err)
	reply, err := BuildHeader(CMD_PREPARE_DATA, 0, 42, 2)
	require.NoError(t, err)
	reply = append(reply, 0x30, 0, 0, 0)
	framed, err := createTCPTop(reply)
	require.NoError(t, err)

	tr := &tcpTransport{pending: append(append([]byte(nil), raw...), framed...)}

	pkt, ok := tr.nextFrame()
	require.True(t, ok)
	assert.Equal(t, raw, pkt)

	pkt, ok = tr.nextFrame()
	require.True(t, ok)
	assert.Equal(t, reply, pkt)

	_, ok = tr.nextFrame()
	assert.False(t, ok)
}

func TestNextFrameWaitsForWholeFrame(t *testing.T) {
	reply, err := BuildHeader(CMD_ACK_OK, 0, 42, 1)
	require.NoError(t, err)
	framed, err := createTCPTop(reply)
	require.NoError(t, err)

	tr := &tcpTransport{pending: append([]byte(nil), framed[:10]...)}
	_, ok := tr.nextFrame()
	assert.False(t, ok)

	tr.pending = append(tr.pending, framed[10:]...)
	pkt, ok := tr.nextFrame()
	require.True(t, ok)
	assert.Equal(t, reply, pkt)
}
