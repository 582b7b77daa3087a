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

// ParameterProxy is the daemon-side object addressing one registered
// parameter provider's client-side stub. It implements Parameter by
// encoding each call, sending it via the manager, and decoding the
// matching reply. Every call is routed through a Dispatcher so the
// provider's call_mode is honored regardless of which goroutine issues it.
type ParameterProxy struct {
	base       *proxystub.ProxyBase
	dispatcher *Dispatcher
}

// NewParameterProxy constructs a ParameterProxy bound to mgr, addressing
// targetID (the id allocated for this provider in the registration
// handshake's first step), dispatching every call through dispatcher.
func NewParameterProxy(mgr *manager.Manager, selfID, targetID object.ID, dispatcher *Dispatcher) *ParameterProxy {
	return &ParameterProxy{
		base: &proxystub.ProxyBase{
			Manager:  mgr,
			SenderID: selfID,
			TargetID: targetID,
		},
		dispatcher: dispatcher,
	}
}

// Register installs the proxy into its manager's object store under its
// own sender id, so reply frames addressed to that id reach HandleMessage.
func (p *ParameterProxy) Register() error {
	return p.base.Manager.Store().Add(p.base.SenderID, p)
}

// HandleMessage implements object.Handler, resolving the pending call
// named by the decoded reply header.
func (p *ParameterProxy) HandleMessage(body []byte) error {
	return handleProxyReply(&p.base.PendingCalls, body)
}

func (p *ParameterProxy) call(ctx context.Context, ordinal uint32, args []byte, decode func(*codec.Decoder) error) error {
	return p.dispatcher.Dispatch(ctx, func(ctx context.Context) error {
		return callRoundTrip(ctx, p.base, ordinal, args, decode)
	})
}

// GetParameterValues implements Parameter.
func (p *ParameterProxy) GetParameterValues(ctx context.Context, ids []string) ([]ValueResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeStringSlice(ids); err != nil {
		return nil, err
	}
	var out []ValueResponse
	err := p.call(ctx, OrdinalGetParameterValues, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		out, err = decodeValueResponses(dec)
		return err
	})
	return out, err
}

// SetParameterValues implements Parameter.
func (p *ParameterProxy) SetParameterValues(ctx context.Context, reqs []SetRequest) ([]SetResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := encodeSetRequests(enc, reqs); err != nil {
		return nil, err
	}
	var out []SetResponse
	err := p.call(ctx, OrdinalSetParameterValues, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		out, err = decodeSetResponses(dec)
		return err
	})
	return out, err
}

// SetParameterValuesConnectionAware implements Parameter.
func (p *ParameterProxy) SetParameterValuesConnectionAware(ctx context.Context, reqs []SetRequest, deferResponse bool) ([]SetResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := encodeSetRequests(enc, reqs); err != nil {
		return nil, err
	}
	if err := enc.EncodeBool(deferResponse); err != nil {
		return nil, err
	}
	var out []SetResponse
	err := p.call(ctx, OrdinalSetParameterValuesConnectionAware, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		out, err = decodeSetResponses(dec)
		return err
	})
	return out, err
}

// InvokeMethod implements Parameter.
func (p *ParameterProxy) InvokeMethod(ctx context.Context, methodID string, args []byte) (MethodResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeString(methodID); err != nil {
		return MethodResponse{}, err
	}
	if err := enc.EncodeBytes(args); err != nil {
		return MethodResponse{}, err
	}
	var out MethodResponse
	err := p.call(ctx, OrdinalInvokeMethod, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		out, err = decodeMethodResponse(dec)
		return err
	})
	return out, err
}

// CreateParameterUploadID implements Parameter.
func (p *ParameterProxy) CreateParameterUploadID(ctx context.Context, paramContext string) (backend.FileIDResponse, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeString(paramContext); err != nil {
		return backend.FileIDResponse{}, err
	}
	var out backend.FileIDResponse
	err := p.call(ctx, OrdinalCreateParameterUploadID, buf.Bytes(), func(dec *codec.Decoder) error {
		status, err := dec.DecodeUint32()
		if err != nil {
			return err
		}
		out.Status = backend.Status(status)
		out.FileID, err = dec.DecodeString()
		return err
	})
	return out, err
}

// RemoveParameterUploadID implements Parameter.
func (p *ParameterProxy) RemoveParameterUploadID(ctx context.Context, fileID, paramContext string) (backend.Response, error) {
	buf := &bytes.Buffer{}
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeString(fileID); err != nil {
		return backend.Response{}, err
	}
	if err := enc.EncodeString(paramContext); err != nil {
		return backend.Response{}, err
	}
	var out backend.Response
	err := p.call(ctx, OrdinalRemoveParameterUploadID, buf.Bytes(), func(dec *codec.Decoder) error {
		status, err := dec.DecodeUint32()
		out.Status = backend.Status(status)
		return err
	})
	return out, err
}

// ParameterStub is the client-side object fielding calls the daemon routes
// to a registered parameter provider: it decodes the call, invokes target,
// and encodes the reply.
type ParameterStub struct {
	base   *proxystub.StubBase
	target Parameter
}

// NewParameterStub constructs a ParameterStub bound to mgr at selfID,
// forwarding decoded calls to target.
func NewParameterStub(mgr *manager.Manager, selfID object.ID, target Parameter) *ParameterStub {
	return &ParameterStub{base: &proxystub.StubBase{Manager: mgr, SelfID: selfID}, target: target}
}

// HandleMessage implements object.Handler.
func (s *ParameterStub) HandleMessage(body []byte) error {
	ordinal, callID, rest, err := s.base.DecodeHeader(body)
	if err != nil {
		return fmt.Errorf("parameter stub: decode header: %w", err)
	}
	ctx := context.Background()
	dec := codec.NewDecoder(bytes.NewReader(rest))

	var reply []byte
	switch ordinal {
	case OrdinalGetParameterValues:
		ids, err := dec.DecodeStringSlice()
		if err != nil {
			return err
		}
		values, err := s.target.GetParameterValues(ctx, ids)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := encodeValueResponses(codec.NewEncoder(buf), values); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalSetParameterValues:
		reqs, err := decodeSetRequests(dec)
		if err != nil {
			return err
		}
		resp, err := s.target.SetParameterValues(ctx, reqs)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := encodeSetResponses(codec.NewEncoder(buf), resp); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalSetParameterValuesConnectionAware:
		reqs, err := decodeSetRequests(dec)
		if err != nil {
			return err
		}
		deferResponse, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		resp, err := s.target.SetParameterValuesConnectionAware(ctx, reqs, deferResponse)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := encodeSetResponses(codec.NewEncoder(buf), resp); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalInvokeMethod:
		methodID, err := dec.DecodeString()
		if err != nil {
			return err
		}
		args, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		resp, err := s.target.InvokeMethod(ctx, methodID, args)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := resp.encode(codec.NewEncoder(buf)); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalCreateParameterUploadID:
		paramContext, err := dec.DecodeString()
		if err != nil {
			return err
		}
		resp, err := s.target.CreateParameterUploadID(ctx, paramContext)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		enc := codec.NewEncoder(buf)
		if err := enc.EncodeUint32(uint32(resp.Status)); err != nil {
			return err
		}
		if err := enc.EncodeString(resp.FileID); err != nil {
			return err
		}
		reply = buf.Bytes()

	case OrdinalRemoveParameterUploadID:
		fileID, err := dec.DecodeString()
		if err != nil {
			return err
		}
		paramContext, err := dec.DecodeString()
		if err != nil {
			return err
		}
		resp, err := s.target.RemoveParameterUploadID(ctx, fileID, paramContext)
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		if err := codec.NewEncoder(buf).EncodeUint32(uint32(resp.Status)); err != nil {
			return err
		}
		reply = buf.Bytes()

	default:
		return fmt.Errorf("parameter stub: unknown ordinal %d", ordinal)
	}

	s.base.Reply(s.base.SelfID, callID, reply)
	return nil
}
