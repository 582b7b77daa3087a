// Package manager multiplexes a single stream-adapter transport across the
// managed objects of one connection: it prepends sender ids on the way out
// and resolves receiver ids on the way in, handing each
// inbound frame to the addressed object under a call-reference guard.
package manager

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/ipc/stream"
)

// ErrNoSuchObject is returned by Send when sender is not registered in the
// manager's store (it has likely already been destroyed).
var ErrNoSuchObject = errors.New("manager: sender object not registered")

// SendCompletion is invoked once the outbound frame has been handed to the
// transport, or has failed to be.
type SendCompletion func(err error)

// Manager owns one stream.Adapter and the object.Store for its connection.
type Manager struct {
	adapter stream.Adapter
	store   *object.Store
}

// New constructs a Manager over adapter, with a fresh object store, and
// immediately starts its receive loop.
func New(adapter stream.Adapter) *Manager {
	m := &Manager{
		adapter: adapter,
		store:   object.NewStore(),
	}
	m.scheduleReceive()
	return m
}

// Store returns the object store backing this connection.
func (m *Manager) Store() *object.Store { return m.store }

// Adapter returns the underlying stream adapter.
func (m *Manager) Adapter() stream.Adapter { return m.adapter }

// Send prepends senderID to body and transmits it over the adapter.
// completion fires once the transport has
// accepted or rejected the write.
func (m *Manager) Send(senderID object.ID, body []byte, completion SendCompletion) {
	if _, err := m.store.Get(senderID); err != nil {
		if completion != nil {
			completion(ErrNoSuchObject)
		}
		return
	}

	framed := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(framed[:4], senderID)
	copy(framed[4:], body)

	m.adapter.Send(framed, func(err error) {
		if completion != nil {
			completion(err)
		}
	})
}

// scheduleReceive registers the next inbound-frame handler. It re-arms
// itself after every successfully dispatched frame, matching the adapter's
// one-shot Receive contract.
func (m *Manager) scheduleReceive() {
	m.adapter.Receive(m.onFrame)
}

func (m *Manager) onFrame(payload []byte, err error) {
	if err != nil {
		// Transport gone: every object in the store is destroyed. Outstanding
		// proxy promises are not resolved here (nothing calls DropAll), so a
		// caller waiting on one returns only when its own context ends.
		logger.Debug("manager: transport closed", "connection", m.adapter.ConnectionInfo().Name, "error", err)
		m.store.CloseAll()
		return
	}

	m.dispatch(payload)
	m.scheduleReceive()
}

func (m *Manager) dispatch(frame []byte) {
	if len(frame) < 4 {
		logger.Warn("manager: frame shorter than object id, dropping")
		return
	}
	id := binary.LittleEndian.Uint32(frame[:4])
	body := frame[4:]

	handler, guard, err := m.store.Acquire(id)
	if err != nil {
		// Unknown or marked-to-destroy target: logged and discarded.
		// Reserved behavior: a future version may reply with a synthetic
		// negative response instead of silent drop.
		logger.Debug("manager: dropping frame for unavailable object", "object_id", id, "error", err)
		return
	}
	defer guard.Release()

	if err := handler.HandleMessage(body); err != nil {
		logger.Warn("manager: handler returned error", "object_id", id, "error", err)
	}
}

// DecodeLeadingID peels the 4-byte little-endian object id off frame,
// returning the remaining body. It is exposed for tests and for proxy/stub
// implementations that need to re-derive addressing without going through
// dispatch.
func DecodeLeadingID(frame []byte) (object.ID, []byte, error) {
	if len(frame) < 4 {
		return 0, nil, fmt.Errorf("manager: frame too short for object id")
	}
	return binary.LittleEndian.Uint32(frame[:4]), frame[4:], nil
}
