package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

/*
STOMP 1.2 FRAMES

A frame is a command line, header lines, a blank line, the body and a NUL octet:

	MESSAGE
	destination:/topic/chat/12
	subscription:sub-3

	{"senderId":7}^@

A lone EOL between frames is a heart-beat. Over a websocket every message carries
zero or more complete frames, so each message gets its own frame reader and
writer from go-stomp; the connection itself stays ours.
*/

var ErrMalformedFrame = errors.New("stomp: malformed frame")

var heartbeat = []byte{'\n'}

// Encode writes f in wire form. content-length is set whenever there is a body.
func Encode(f *frame.Frame) []byte {
	if len(f.Body) > 0 {
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}
	var buf bytes.Buffer
	// writes into a bytes.Buffer do not fail
	_ = frame.NewWriter(&buf).Write(f)
	return buf.Bytes()
}

// Heartbeat is the wire form of an outgoing heart-beat.
func Heartbeat() []byte {
	return heartbeat
}

// Decode parses every frame in one websocket message. Heart-beat EOLs are
// skipped, so a heart-beat-only message yields no frames and no error.
func Decode(data []byte) ([]*frame.Frame, error) {
	// a message ends on a NUL, optionally followed by EOLs; anything else
	// would be read as a clean EOF halfway through a frame
	if rest := bytes.TrimRight(data, "\r\n"); len(rest) > 0 && rest[len(rest)-1] != 0 {
		return nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformedFrame)
	}

	r := frame.NewReader(bytes.NewReader(data))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

// parseHeartBeat reads a "cx,cy" heart-beat header. Invalid values disable
// heart-beating in both directions.
func parseHeartBeat(v string) (time.Duration, time.Duration) {
	x, y, err := frame.ParseHeartBeat(v)
	if err != nil {
		return 0, 0
	}
	return x, y
}
