package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
)

// pumpedNATSLink builds a link with the frame pump running but no broker
// behind it, so frame handling can be driven directly.
func pumpedNATSLink() *natsLink {
	l := &natsLink{
		remoteID: "peer",
		incoming: make(chan []byte, 16),
		messages: make(chan protocol.Message, 16),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func frameBytes(t *testing.T, f natsFrame) []byte {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func expectClosed(t *testing.T, l *natsLink) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-l.Messages():
			if !ok {
				select {
				case <-l.Done():
					return
				case <-deadline:
					t.Fatal("Done never closed")
				}
			}
		case <-deadline:
			t.Fatal("Messages never closed")
		}
	}
}

func TestNATSLinkDeliversDataFrames(t *testing.T) {
	l := pumpedNATSLink()
	defer l.Close()

	payload, err := json.Marshal(protocol.NewBuzz("p1"))
	if err != nil {
		t.Fatal(err)
	}
	l.incoming <- frameBytes(t, natsFrame{Kind: frameData, Payload: payload})

	select {
	case msg := <-l.Messages():
		if msg.Type != protocol.TypeBuzz || msg.SenderID != "p1" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("data frame never delivered")
	}
}

// A peer-sent close frame must end the message stream, not just flag Done;
// consumers ranging over Messages rely on it to observe the disconnect.
func TestNATSLinkCloseFrameEndsMessageStream(t *testing.T) {
	l := pumpedNATSLink()
	l.incoming <- frameBytes(t, natsFrame{Kind: frameClose})
	expectClosed(t, l)
}

func TestNATSLinkLocalCloseEndsMessageStream(t *testing.T) {
	l := pumpedNATSLink()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectClosed(t, l)

	if err := l.Send(protocol.NewBuzz("p1")); err == nil {
		t.Fatal("send on a closed link should fail")
	}
}

func TestNATSLinkDropsUndecodableFrames(t *testing.T) {
	l := pumpedNATSLink()
	defer l.Close()

	l.incoming <- []byte("not a frame")
	payload, err := json.Marshal(protocol.NewReleaseBuzzer())
	if err != nil {
		t.Fatal(err)
	}
	l.incoming <- frameBytes(t, natsFrame{Kind: frameData, Payload: payload})

	select {
	case msg := <-l.Messages():
		if msg.Type != protocol.TypeReleaseBuzzer {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stalled on the bad frame")
	}
}
