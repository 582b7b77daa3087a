package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/ipc/proxystub"
)

// FileProxy is the daemon-side object addressing one registered file
// provider's client-side stub. Every call is routed through a Dispatcher so
// the provider's call_mode is honored regardless of which goroutine issues
// it — in particular, calls from several concurrent pkg/filetransfer
// requests still go through the serialized provider's single queue.
type FileProxy struct {
	base       *proxystub.ProxyBase
	dispatcher *Dispatcher
}

// NewFileProxy constructs a FileProxy bound to mgr, addressing targetID (the
// id allocated for this file provider in the registration handshake's first
// step), dispatching every call through dispatcher.
func NewFileProxy(mgr *manager.Manager, selfID, targetID object.ID, dispatcher *Dispatcher) *FileProxy {
	return &FileProxy{
		base: &proxystub.ProxyBase{
			Manager:  mgr,
			SenderID: selfID,
			TargetID: targetID,
		},
		dispatcher: dispatcher,
	}
}

// Register installs the proxy into its manager's object store under its own
// sender id, so reply frames addressed to that id reach HandleMessage.
func (p *FileProxy) Register() error {
	return p.base.Manager.Store().Add(p.base.SenderID, p)
}

// HandleMessage implements object.Handler.
func (p *FileProxy) HandleMessage(body []byte) error {
	return handleProxyReply(&p.base.PendingCalls, body)
}

func (p *FileProxy) call(ctx context.Context, ordinal uint32, args []byte, decode func(*codec.Decoder) error) error {
	return p.dispatcher.Dispatch(ctx, func(ctx context.Context) error {
		return callRoundTrip(ctx, p.base, ordinal, args, decode)
	})
}

// Read implements File. The fast-path codec.FileReadResponse encoding avoids
// an extra copy of the (usually large) data payload.
func (p *FileProxy) Read(ctx context.Context, offset, length uint64) (codec.FileReadResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint64(offset); err != nil {
		return codec.FileReadResponse{}, err
	}
	if err := enc.EncodeUint64(length); err != nil {
		return codec.FileReadResponse{}, err
	}
	var out codec.FileReadResponse
	err := p.call(ctx, OrdinalFileRead, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		out, err = dec.DecodeFileReadResponse()
		return err
	})
	return out, err
}

// Write implements File.
func (p *FileProxy) Write(ctx context.Context, offset uint64, data []byte) (backend.Response, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint64(offset); err != nil {
		return backend.Response{}, err
	}
	if err := enc.EncodeBytes(data); err != nil {
		return backend.Response{}, err
	}
	var out backend.Response
	err := p.call(ctx, OrdinalFileWrite, buf.Bytes(), func(dec *codec.Decoder) error {
		status, err := dec.DecodeUint32()
		out.Status = backend.Status(status)
		return err
	})
	return out, err
}

// GetFileInfo implements File.
func (p *FileProxy) GetFileInfo(ctx context.Context) (FileInfoResponse, error) {
	var out FileInfoResponse
	err := p.call(ctx, OrdinalFileGetInfo, nil, func(dec *codec.Decoder) error {
		var err error
		out, err = decodeFileInfoResponse(dec)
		return err
	})
	return out, err
}

// Create implements File.
func (p *FileProxy) Create(ctx context.Context, capacity uint64) (backend.Response, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint64(capacity); err != nil {
		return backend.Response{}, err
	}
	var out backend.Response
	err := p.call(ctx, OrdinalFileCreate, buf.Bytes(), func(dec *codec.Decoder) error {
		status, err := dec.DecodeUint32()
		out.Status = backend.Status(status)
		return err
	})
	return out, err
}

// FileStub is the client-side object fielding calls the daemon routes to a
// registered file provider: it decodes the call, invokes target, and
// encodes the reply.
type FileStub struct {
	base   *proxystub.StubBase
	target File
}

// NewFileStub constructs a FileStub bound to mgr at selfID, forwarding
// decoded calls to target.
func NewFileStub(mgr *manager.Manager, selfID object.ID, target File) *FileStub {
	return &FileStub{base: &proxystub.StubBase{Manager: mgr, SelfID: selfID}, target: target}
}

// HandleMessage implements object.Handler.
func (s *FileStub) HandleMessage(body []byte) error {
	ordinal, callID, rest, err := s.base.DecodeHeader(body)
	if err != nil {
		return fmt.Errorf("file stub: decode header: %w", err)
	}
	ctx := context.Background()
	dec := codec.NewDecoder(bytes.NewReader(rest))

	var reply []byte
	switch ordinal {
	case OrdinalFileRead:
		offset, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		resp, err := s.target.Read(ctx, offset, length)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := codec.NewEncoder(buf).EncodeFileReadResponse(resp); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalFileWrite:
		offset, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		data, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		resp, err := s.target.Write(ctx, offset, data)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := codec.NewEncoder(buf).EncodeUint32(uint32(resp.Status)); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalFileGetInfo:
		resp, err := s.target.GetFileInfo(ctx)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := resp.encode(codec.NewEncoder(buf)); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalFileCreate:
		capacity, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		resp, err := s.target.Create(ctx, capacity)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := codec.NewEncoder(buf).EncodeUint32(uint32(resp.Status)); err != nil {
			return err
		}
		reply = buf.Bytes()

	default:
		return fmt.Errorf("file stub: unknown ordinal %d", ordinal)
	}

	s.base.Reply(s.base.SelfID, callID, reply)
	return nil
}
