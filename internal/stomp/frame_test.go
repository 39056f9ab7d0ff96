package stomp

import (
	"strings"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_SendFrame(t *testing.T) {
	data := Encode(frame.New(frame.SEND,
		frame.Destination, "/app/presence",
		frame.ContentType, "application/json",
	))
	assert.True(t, strings.HasPrefix(string(data), "SEND\n"))
	assert.Contains(t, string(data), "destination:/app/presence\n")
	assert.Contains(t, string(data), "content-type:application/json\n")
	assert.True(t, strings.HasSuffix(string(data), "\n\n\x00"))

	f := frame.New(frame.SEND, frame.Destination, "/app/presence")
	f.Body = []byte(`{}`)
	frames, err := Decode(Encode(f))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "2", frames[0].Header.Get(frame.ContentLength))
	assert.Equal(t, `{}`, string(frames[0].Body))
}

func TestDecode_MessageFrame(t *testing.T) {
	raw := "MESSAGE\ndestination:/topic/chat/12\nsubscription:sub-1\nmessage-id:7\n\n{\"senderId\":3}\x00"

	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "/topic/chat/12", f.Header.Get(frame.Destination))
	assert.Equal(t, "sub-1", f.Header.Get(frame.Subscription))
	assert.JSONEq(t, `{"senderId":3}`, string(f.Body))
}

func TestDecode_ContentLengthAllowsNULInBody(t *testing.T) {
	raw := "MESSAGE\ncontent-length:3\n\na\x00b\x00"

	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b"), frames[0].Body)
}

func TestDecode_HeartbeatsAndMultipleFrames(t *testing.T) {
	raw := "\nRECEIPT\nreceipt-id:r1\n\n\x00\nMESSAGE\nsubscription:sub-2\n\nhi\x00\n"

	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, frame.RECEIPT, frames[0].Command)
	assert.Equal(t, "hi", string(frames[1].Body))

	frames, err = Decode(Heartbeat())
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"no terminator":     "MESSAGE\n\nbody",
		"short body":        "MESSAGE\ncontent-length:10\n\nabc\x00",
		"unterminated head": "MESSAGE\nfoo:bar",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncodeDecode_EscapedHeaderSurvives(t *testing.T) {
	in := frame.New(frame.MESSAGE, "x-note", "back\\slash:colon\nline")
	in.Body = []byte("body")

	frames, err := Decode(Encode(in))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "back\\slash:colon\nline", frames[0].Header.Get("x-note"))
	assert.Equal(t, "body", string(frames[0].Body))
}

func TestParseHeartBeat(t *testing.T) {
	x, y := parseHeartBeat("4000,10000")
	assert.Equal(t, 4*time.Second, x)
	assert.Equal(t, 10*time.Second, y)

	x, y = parseHeartBeat("garbage")
	assert.Zero(t, x)
	assert.Zero(t, y)
}
