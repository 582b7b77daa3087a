package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/ipc/stream"
)

// fakeAdapter is an in-memory stream.Adapter that loops sent frames back as
// received frames, so a Manager can be exercised without a real socket.
type fakeAdapter struct {
	mu      sync.Mutex
	handler stream.ReceiveHandler
	closed  bool
	info    stream.ConnectionInfo
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{info: stream.ConnectionInfo{Name: "fake", Direction: stream.Outbound}}
}

func (f *fakeAdapter) Send(payload []byte, completion stream.SendCompletion) {
	f.mu.Lock()
	h := f.handler
	f.handler = nil
	closed := f.closed
	f.mu.Unlock()

	if closed {
		completion(stream.ErrClosed)
		return
	}
	if h != nil {
		h(payload, nil)
	}
	completion(nil)
}

func (f *fakeAdapter) Receive(handler stream.ReceiveHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		handler(nil, stream.ErrClosed)
		return
	}
	f.handler = handler
}

func (f *fakeAdapter) ConnectionInfo() stream.ConnectionInfo { return f.info }

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.handler != nil {
		f.handler(nil, stream.ErrClosed)
		f.handler = nil
	}
	return nil
}

type echoHandler struct {
	received chan []byte
}

func (e *echoHandler) HandleMessage(body []byte) error {
	e.received <- append([]byte(nil), body...)
	return nil
}

func TestManagerDispatchesToRegisteredObject(t *testing.T) {
	adapter := newFakeAdapter()
	m := New(adapter)

	h := &echoHandler{received: make(chan []byte, 1)}
	id := m.Store().GenerateObjectID()
	if err := m.Store().Add(id, h); err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan error, 1)
	m.Send(id, []byte("payload"), func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send completion error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send completion")
	}

	select {
	case body := <-h.received:
		if string(body) != "payload" {
			t.Fatalf("got body %q", body)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestManagerSendFailsForUnknownSender(t *testing.T) {
	adapter := newFakeAdapter()
	m := New(adapter)

	done := make(chan error, 1)
	m.Send(999, []byte("x"), func(err error) { done <- err })

	select {
	case err := <-done:
		if err != ErrNoSuchObject {
			t.Fatalf("got %v, want ErrNoSuchObject", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestManagerDropsFrameForDestroyedObject(t *testing.T) {
	adapter := newFakeAdapter()
	m := New(adapter)

	h := &echoHandler{received: make(chan []byte, 1)}
	id := object.ID(1000)
	if err := m.Store().Add(id, h); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Store().Destroy(id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	m.dispatch(frameFor(id, []byte("late")))

	select {
	case <-h.received:
		t.Fatal("handler should not receive messages after destroy")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDecodeLeadingID(t *testing.T) {
	frame := frameFor(42, []byte("abc"))
	id, body, err := DecodeLeadingID(frame)
	if err != nil {
		t.Fatalf("DecodeLeadingID: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	if string(body) != "abc" {
		t.Fatalf("body = %q", body)
	}
}

func frameFor(id object.ID, body []byte) []byte {
	frame := make([]byte, 4+len(body))
	frame[0] = byte(id)
	frame[1] = byte(id >> 8)
	frame[2] = byte(id >> 16)
	frame[3] = byte(id >> 24)
	copy(frame[4:], body)
	return frame
}
