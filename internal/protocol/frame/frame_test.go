package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	IDc   string `json:"idc"`
	Nonce uint64 `json:"nonce"`
}

func TestSendRecvRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := testMessage{IDc: "alice", Nonce: 42}

	require.NoError(t, Send(&buf, want))

	var got testMessage
	require.NoError(t, Recv(&buf, &got))
	assert.Equal(t, want, got)
}

func TestRecvRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	header[0] = 0x7F // length field far larger than MaxMessageSize
	buf.Write(header)

	var got testMessage
	assert.Error(t, Recv(&buf, &got))
}

func TestRecvRejectsTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, testMessage{IDc: "alice"}))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	var got testMessage
	assert.Error(t, Recv(truncated, &got))
}
