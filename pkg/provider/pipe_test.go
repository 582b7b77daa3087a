package provider

import (
	"sync"

	"github.com/parasvc/fabric/pkg/ipc/stream"
)

// pipeAdapter is one half of an in-memory, full-duplex stream.Adapter pair
// used to exercise a real proxy/stub round trip without a socket.
type pipeAdapter struct {
	mu      sync.Mutex
	handler stream.ReceiveHandler
	peer    *pipeAdapter
	closed  bool
	info    stream.ConnectionInfo
}

func newPipe() (a, b *pipeAdapter) {
	a = &pipeAdapter{info: stream.ConnectionInfo{Name: "a", Direction: stream.Outbound}}
	b = &pipeAdapter{info: stream.ConnectionInfo{Name: "b", Direction: stream.Inbound}}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pipeAdapter) Send(payload []byte, completion stream.SendCompletion) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		completion(stream.ErrClosed)
		return
	}

	peer := p.peer
	peer.mu.Lock()
	h := peer.handler
	peer.handler = nil
	peerClosed := peer.closed
	peer.mu.Unlock()

	if peerClosed {
		completion(stream.ErrClosed)
		return
	}
	if h != nil {
		h(append([]byte(nil), payload...), nil)
	}
	completion(nil)
}

func (p *pipeAdapter) Receive(handler stream.ReceiveHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		handler(nil, stream.ErrClosed)
		return
	}
	p.handler = handler
}

func (p *pipeAdapter) ConnectionInfo() stream.ConnectionInfo { return p.info }

func (p *pipeAdapter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.handler != nil {
		p.handler(nil, stream.ErrClosed)
		p.handler = nil
	}
	return nil
}
