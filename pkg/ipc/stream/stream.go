// Package stream frames IPC messages onto and off a bidirectional byte
// transport, implementing a stream adapter contract: a single outstanding
// send at a time, one-shot receive registration, and a
// stable connection identity for logging.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/parasvc/fabric/internal/logger"
)

// ErrClosed is delivered to a pending send/receive completion when the
// underlying transport is closed while the operation is outstanding.
var ErrClosed = errors.New("closed")

// ErrTooLong is returned by Send when the payload exceeds the adapter's
// advertised MaxSendData ceiling.
var ErrTooLong = errors.New("payload exceeds max_send_data")

// Direction describes which end of a connection an Adapter represents.
type Direction int

const (
	// Inbound adapters were accepted from a listening socket.
	Inbound Direction = iota
	// Outbound adapters were dialed out by this process.
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// ConnectionInfo is the stable identity exposed by an Adapter, used in log
// fields and diagnostics.
type ConnectionInfo struct {
	Name      string
	Direction Direction
}

// ReceiveHandler is invoked exactly once per Receive registration with the
// payload of the next incoming frame, or with a non-nil error if the
// transport failed or closed before a frame arrived.
type ReceiveHandler func(payload []byte, err error)

// SendCompletion is invoked exactly once after Send finishes transmitting,
// with nil on success or a descriptive error (ErrClosed on transport close).
type SendCompletion func(err error)

// Adapter is the stream adapter contract.
type Adapter interface {
	// Send transmits a single framed message. completion is invoked exactly
	// once, from a goroutine owned by the adapter.
	Send(payload []byte, completion SendCompletion)
	// Receive is a one-shot registration for the next incoming frame.
	// Re-registration after the handler fires is the caller's responsibility.
	Receive(handler ReceiveHandler)
	// ConnectionInfo exposes a stable name and direction for this adapter.
	ConnectionInfo() ConnectionInfo
	// Close shuts down the transport, failing every outstanding and future
	// Send/Receive with ErrClosed.
	Close() error
}

// FrameAdapter frames messages over an io.ReadWriteCloser using a 4-byte
// little-endian length prefix; the framed body's own first field is a
// 4-byte target object id.
//
// Each send waits for the previous send's write to finish before writing,
// so frames are written and completions fire in submission order: messages
// on a single transport are delivered in send order. Reads run on a
// dedicated goroutine
// that parses frames as they arrive and hands each one to whichever
// Receive handler is currently registered (or buffers it if none is).
type FrameAdapter struct {
	rw   io.ReadWriteCloser
	info ConnectionInfo

	maxSendData uint32

	sendMu   sync.Mutex
	sendOnce chan struct{} // token handed from each send to the next, in call order

	mu       sync.Mutex
	closed   bool
	pending  ReceiveHandler
	buffered [][]byte
	readErr  error

	closeOnce sync.Once
	closeCh   chan struct{}
}

// DefaultMaxSendData is the ceiling applied when NewFrameAdapter is called
// with maxSendData == 0.
const DefaultMaxSendData = 16 << 20

// NewFrameAdapter wraps rw with length-prefixed framing. maxSendData bounds
// the payload size Send will transmit; zero selects DefaultMaxSendData.
func NewFrameAdapter(rw io.ReadWriteCloser, info ConnectionInfo, maxSendData uint32) *FrameAdapter {
	if maxSendData == 0 {
		maxSendData = DefaultMaxSendData
	}
	a := &FrameAdapter{
		rw:          rw,
		info:        info,
		maxSendData: maxSendData,
		sendOnce:    make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
	a.sendOnce <- struct{}{}
	go a.readLoop()
	return a
}

func (a *FrameAdapter) ConnectionInfo() ConnectionInfo { return a.info }

// Send transmits payload, framed with a 4-byte length prefix. Sends queue
// behind one another in call order; completion fires once the write (or its
// failure) is complete.
func (a *FrameAdapter) Send(payload []byte, completion SendCompletion) {
	if uint32(len(payload)) > a.maxSendData {
		go completion(ErrTooLong)
		return
	}
	a.sendMu.Lock()
	turn := a.sendOnce
	next := make(chan struct{}, 1)
	a.sendOnce = next
	a.sendMu.Unlock()
	go func() {
		<-turn
		defer func() { next <- struct{}{} }()

		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()
		if closed {
			completion(ErrClosed)
			return
		}

		header := make([]byte, 4)
		binary.LittleEndian.PutUint32(header, uint32(len(payload)))
		if _, err := a.rw.Write(header); err != nil {
			completion(translateWriteErr(err))
			return
		}
		if len(payload) > 0 {
			if _, err := a.rw.Write(payload); err != nil {
				completion(translateWriteErr(err))
				return
			}
		}
		completion(nil)
	}()
}

func translateWriteErr(err error) error {
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
		return ErrClosed
	}
	return err
}

// Receive registers handler for the next incoming frame. If a frame has
// already been read ahead (buffered while no handler was registered), the
// handler fires immediately from the caller's goroutine.
func (a *FrameAdapter) Receive(handler ReceiveHandler) {
	a.mu.Lock()
	if len(a.buffered) > 0 {
		payload := a.buffered[0]
		a.buffered = a.buffered[1:]
		a.mu.Unlock()
		handler(payload, nil)
		return
	}
	if a.readErr != nil {
		err := a.readErr
		a.mu.Unlock()
		handler(nil, err)
		return
	}
	if a.closed {
		a.mu.Unlock()
		handler(nil, ErrClosed)
		return
	}
	a.pending = handler
	a.mu.Unlock()
}

func (a *FrameAdapter) readLoop() {
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(a.rw, header); err != nil {
			a.fail(translateReadErr(err))
			return
		}
		length := binary.LittleEndian.Uint32(header)
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(a.rw, payload); err != nil {
				a.fail(translateReadErr(err))
				return
			}
		}
		a.deliver(payload)
	}
}

func translateReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}

func (a *FrameAdapter) deliver(payload []byte) {
	a.mu.Lock()
	if a.pending != nil {
		handler := a.pending
		a.pending = nil
		a.mu.Unlock()
		handler(payload, nil)
		return
	}
	a.buffered = append(a.buffered, payload)
	a.mu.Unlock()
}

func (a *FrameAdapter) fail(err error) {
	a.mu.Lock()
	a.readErr = err
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()
	if pending != nil {
		pending(nil, err)
	}
	a.closeOnce.Do(func() { close(a.closeCh) })
	logger.Debug("stream adapter read loop stopped", "connection", a.info.Name, "error", err)
}

// Closed returns a channel that is closed once the adapter's read loop has
// stopped, whether because the transport failed or Close was called.
// Callers that accept connections can use it to know when a connection's
// resources are safe to release.
func (a *FrameAdapter) Closed() <-chan struct{} {
	return a.closeCh
}

// Close closes the underlying transport. Any pending Receive handler is
// invoked with ErrClosed; future Send/Receive calls fail immediately.
func (a *FrameAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if pending != nil {
		pending(nil, ErrClosed)
	}
	if err := a.rw.Close(); err != nil {
		return fmt.Errorf("stream: close: %w", err)
	}
	return nil
}
