// Package proxystub provides the generic call-encoding/call-dispatch base
// shared by every generated proxy/stub pair: a stable method ordinal per
// call, a monotonic call id per proxy, and a future-style
// promise keyed by that call id.
package proxystub

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
)

// ReplyKind distinguishes the two message shapes a stub ever sends back:
// a normal return value, or (reserved) a synthetic rejection.
type ReplyKind uint8

const (
	// ReturnForCall carries the ordinary return value of a proxy call.
	ReturnForCall ReplyKind = iota
)

// ErrDropped is the resolution DropAll gives every outstanding promise on a
// proxy. Neither a transport close nor the destruction of the proxy's store
// entry calls DropAll.
var ErrDropped = errors.New("proxystub: call dropped")

// CallID is a per-proxy monotonic token identifying one outstanding call.
type CallID = uint64

// Completion is invoked exactly once when a pending call's reply arrives,
// or when it is cancelled via DropAll.
type Completion func(body []byte, err error)

// PendingCalls tracks the outstanding promises for one proxy instance. It
// is embedded into generated proxy structs.
type PendingCalls struct {
	nextCallID atomic.Uint64

	mu      sync.Mutex
	pending map[CallID]Completion
}

// NewCallID returns a fresh, never-reused call id for this proxy.
func (p *PendingCalls) NewCallID() CallID {
	return p.nextCallID.Add(1)
}

// Register stores completion under id, to be invoked once by Resolve or
// Drop.
func (p *PendingCalls) Register(id CallID, completion Completion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		p.pending = make(map[CallID]Completion)
	}
	p.pending[id] = completion
}

// Resolve delivers a reply to the promise registered under id. It is a
// no-op if no such promise is pending (e.g. a duplicate or stray reply).
func (p *PendingCalls) Resolve(id CallID, body []byte, err error) {
	p.mu.Lock()
	completion, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()

	if ok {
		completion(body, err)
	}
}

// DropAll resolves every outstanding promise with ErrDropped. It runs only
// when called explicitly; the manager and object store do not call it.
func (p *PendingCalls) DropAll() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, completion := range pending {
		completion(nil, ErrDropped)
	}
}

// ProxyBase is embedded by every generated proxy. It owns the call-id
// sequence and the promise table, and knows how to reach its manager and
// object id to send encoded calls.
type ProxyBase struct {
	PendingCalls

	Manager  *manager.Manager
	SenderID object.ID // this proxy's own object id (the sender on outbound calls)
	TargetID object.ID // the stub object id this proxy addresses
}

// Call encodes (methodOrdinal, callID, argsBody) as the outbound message
// body, sends it via the manager, and registers completion against the
// returned call id. It returns the call id so generated code can correlate
// logging.
func (b *ProxyBase) Call(methodOrdinal uint32, argsBody []byte, completion Completion) CallID {
	callID := b.NewCallID()
	b.Register(callID, completion)

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	if err := enc.EncodeUint32(methodOrdinal); err != nil {
		b.Resolve(callID, nil, err)
		return callID
	}
	if err := enc.EncodeUint64(callID); err != nil {
		b.Resolve(callID, nil, err)
		return callID
	}
	body := append(buf.Bytes(), argsBody...)

	b.Manager.Send(b.SenderID, body, func(err error) {
		if err != nil {
			b.Resolve(callID, nil, err)
		}
	})
	return callID
}

// StubBase is embedded by every generated stub. It decodes the common
// (methodOrdinal, callID) header and knows how to send a ReturnForCall
// reply addressed back to the caller.
type StubBase struct {
	Manager *manager.Manager
	SelfID  object.ID
}

// headerSize is the fixed length of (method_ordinal uint32, call_id uint64)
// at the front of every proxy call body.
const headerSize = 4 + 8

// DecodeHeader splits body into (methodOrdinal, callID, remaining args).
func (s *StubBase) DecodeHeader(body []byte) (methodOrdinal uint32, callID CallID, rest []byte, err error) {
	if len(body) < headerSize {
		return 0, 0, nil, fmt.Errorf("proxystub: header short read")
	}
	methodOrdinal = binary.LittleEndian.Uint32(body[0:4])
	callID = binary.LittleEndian.Uint64(body[4:12])
	return methodOrdinal, callID, body[headerSize:], nil
}

// Reply sends a ReturnForCall message carrying returnBody as the encoded
// return value. The frame is sent under the stub's own SelfID, which the
// peer resolves to the proxy registered under that same id; senderID is
// not used for addressing.
func (s *StubBase) Reply(senderID object.ID, callID CallID, returnBody []byte) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	_ = enc.EncodeUint8(uint8(ReturnForCall))
	_ = enc.EncodeUint64(callID)
	body := append(buf.Bytes(), returnBody...)

	s.Manager.Send(s.SelfID, body, func(err error) {
		_ = senderID // reserved for future per-sender delivery confirmation
		_ = err
	})
}
