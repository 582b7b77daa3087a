package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/ipc/proxystub"
)

// encBuf returns a fresh buffer to build a call's argument body into.
func encBuf() *bytes.Buffer { return &bytes.Buffer{} }

// installProxyHandler registers the local call-forwarding object for a
// freshly created provider id. Failures are logged rather than aborting the
// registration: the daemon already has the id on record by this point, so
// bailing out would leave the two sides disagreeing about what exists.
func (p *Proxy) installProxyHandler(id object.ID, mode CallMode, ref ProviderRef) {
	if p.newProxyHandler == nil {
		return
	}
	if err := p.base.Manager.Store().Add(id, p.newProxyHandler(mode, ref)); err != nil {
		logger.Warn("backend: install provider proxy handler failed", "provider_id", id, "error", err)
	}
}

// BackendObjectID is the fixed id the backend proxy/stub pair always
// addresses.
const BackendObjectID = object.BackendObjectID

// ParameterProviderRegistration is one provider a client wants to register,
// paired with the metadata sent in the handshake's second step.
type ParameterProviderRegistration struct {
	Ref      ProviderRef
	Metadata ProviderMetadata
}

// FileProviderRegistration is one file provider a client wants to register
// for the first time.
type FileProviderRegistration struct {
	Ref      ProviderRef
	Metadata ProviderMetadata
	Context  FileProviderContext
}

// FileProviderReRegistration re-establishes a file provider under its
// previously assigned file id after a reconnection.
type FileProviderReRegistration struct {
	Ref            ProviderRef
	Metadata       ProviderMetadata
	Context        FileProviderContext
	ExistingFileID string
}

// Proxy is the client-side (out-of-process provider) half of the backend
// proxy/stub pair. It drives the three-step registration handshake and
// caches successful registrations for replay after a reconnection.
type Proxy struct {
	base *proxystub.ProxyBase

	devices   *DeviceStore
	providers *ProviderCache

	// newProxyHandler builds the local object that will answer calls the
	// daemon routes to provider id i after step one creates it remotely;
	// it is supplied by the owner of the actual provider implementations
	// (pkg/provider), keeping this package focused on the handshake.
	newProxyHandler func(callMode CallMode, ref ProviderRef) object.Handler
}

// NewProxy constructs a Proxy bound to mgr, addressing the backend object at
// id 0. newProxyHandler is invoked once per registered provider to obtain
// the object that will field calls the daemon forwards to that provider.
// The returned Proxy must be installed into mgr's object store (Register)
// before any call is issued, so replies have somewhere to land.
func NewProxy(mgr *manager.Manager, selfID object.ID, newProxyHandler func(CallMode, ProviderRef) object.Handler) *Proxy {
	return &Proxy{
		base: &proxystub.ProxyBase{
			Manager:  mgr,
			SenderID: selfID,
			TargetID: BackendObjectID,
		},
		devices:         NewDeviceStore(),
		providers:       NewProviderCache(),
		newProxyHandler: newProxyHandler,
	}
}

// Register installs the proxy into its manager's object store under its own
// sender id, so inbound reply frames addressed to that id reach HandleMessage.
func (p *Proxy) Register() error {
	return p.base.Manager.Store().Add(p.base.SenderID, p)
}

// replyHeaderSize is the fixed length of (reply_kind uint8, call_id uint64)
// at the front of every stub reply body.
const replyHeaderSize = 1 + 8

// HandleMessage implements object.Handler: it decodes a (ReplyKind, callID)
// reply header and resolves the matching pending call.
func (p *Proxy) HandleMessage(body []byte) error {
	if len(body) < replyHeaderSize {
		return fmt.Errorf("backend proxy: reply header short read")
	}
	kind := body[0]
	callID := binary.LittleEndian.Uint64(body[1:9])
	if proxystub.ReplyKind(kind) != proxystub.ReturnForCall {
		return fmt.Errorf("backend proxy: unexpected reply kind %d", kind)
	}

	p.base.Resolve(callID, body[replyHeaderSize:], nil)
	return nil
}

// call performs a blocking call(ordinal, args) -> decode(reply) round trip.
func (p *Proxy) call(ctx context.Context, ordinal uint32, args []byte, decode func(*codec.Decoder) error) error {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	p.base.Call(ordinal, args, func(body []byte, err error) {
		done <- result{body: body, err: err}
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		if decode == nil {
			return nil
		}
		dec := codec.NewDecoder(bytes.NewReader(r.body))
		return decode(dec)
	}
}

// createProxies runs step one: request n fresh callback-target ids from the
// daemon.
func (p *Proxy) createProxies(ctx context.Context, n int) ([]object.ID, error) {
	var buf = encBuf()
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint32(uint32(n)); err != nil {
		return nil, err
	}

	var ids []uint32
	err := p.call(ctx, OrdinalCreateProviderProxies, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		ids, err = dec.DecodeUint32Slice()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("backend: create proxies: %w", err)
	}
	if len(ids) != n {
		return nil, fmt.Errorf("backend: create proxies: got %d ids, want %d", len(ids), n)
	}
	return ids, nil
}

// updateProxies runs step two: push display metadata for each freshly
// created id.
func (p *Proxy) updateProxies(ctx context.Context, ids []object.ID, metas []ProviderMetadata) error {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint32Slice(ids); err != nil {
		return err
	}
	if err := encodeCount(enc, len(metas)); err != nil {
		return err
	}
	for _, m := range metas {
		if err := m.encode(enc); err != nil {
			return err
		}
	}
	return p.call(ctx, OrdinalUpdateProviderProxies, buf.Bytes(), nil)
}

// RegisterParameterProviders runs the full three-step handshake for a batch
// of parameter providers and returns the daemon's per-provider response.
func (p *Proxy) RegisterParameterProviders(ctx context.Context, regs []ParameterProviderRegistration, mode CallMode) ([]Response, error) {
	if len(regs) == 0 {
		return nil, nil
	}

	ids, err := p.createProxies(ctx, len(regs))
	if err != nil {
		return nil, err
	}
	metas := make([]ProviderMetadata, len(regs))
	for i, r := range regs {
		metas[i] = r.Metadata
	}
	if err := p.updateProxies(ctx, ids, metas); err != nil {
		return nil, err
	}

	refs := make([]ProviderRef, len(regs))
	for i, r := range regs {
		refs[i] = ProviderRef{ProviderID: ids[i], InterfaceVariant: r.Ref.InterfaceVariant}
		p.installProxyHandler(ids[i], mode, refs[i])
	}

	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeRefs(enc, refs); err != nil {
		return nil, err
	}
	if err := encodeCallMode(enc, mode); err != nil {
		return nil, err
	}

	var responses []Response
	err = p.call(ctx, OrdinalRegisterParameterProviders, buf.Bytes(), func(dec *codec.Decoder) error {
		return decodeResponses(dec, &responses)
	})
	if err != nil {
		return nil, err
	}

	for i, r := range responses {
		if r.OK() {
			p.providers.RecordParameterProvider(refs[i], mode)
		}
	}
	return responses, nil
}

// UnregisterParameterProviders removes providers from the daemon's
// registry and the local cache.
func (p *Proxy) UnregisterParameterProviders(ctx context.Context, refs []ProviderRef) error {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeRefs(enc, refs); err != nil {
		return err
	}
	if err := p.call(ctx, OrdinalUnregisterParameterProviders, buf.Bytes(), nil); err != nil {
		return err
	}
	for _, ref := range refs {
		p.providers.ForgetParameterProvider(ref.ProviderID)
	}
	return nil
}

// RegisterFileProviders runs the handshake for file providers, which differ
// from parameter providers only in carrying a context and receiving a
// daemon-assigned file id back.
func (p *Proxy) RegisterFileProviders(ctx context.Context, regs []FileProviderRegistration, mode CallMode) ([]FileIDResponse, error) {
	if len(regs) == 0 {
		return nil, nil
	}

	ids, err := p.createProxies(ctx, len(regs))
	if err != nil {
		return nil, err
	}
	metas := make([]ProviderMetadata, len(regs))
	for i, r := range regs {
		metas[i] = r.Metadata
	}
	if err := p.updateProxies(ctx, ids, metas); err != nil {
		return nil, err
	}

	refs := make([]ProviderRef, len(regs))
	for i, r := range regs {
		refs[i] = ProviderRef{ProviderID: ids[i], InterfaceVariant: r.Ref.InterfaceVariant}
		p.installProxyHandler(ids[i], mode, refs[i])
	}

	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(refs)); err != nil {
		return nil, err
	}
	for i := range refs {
		if err := refs[i].encode(enc); err != nil {
			return nil, err
		}
		if err := regs[i].Context.encode(enc); err != nil {
			return nil, err
		}
	}
	if err := encodeCallMode(enc, mode); err != nil {
		return nil, err
	}

	var responses []FileIDResponse
	err = p.call(ctx, OrdinalRegisterFileProviders, buf.Bytes(), func(dec *codec.Decoder) error {
		return decodeFileIDResponses(dec, &responses)
	})
	if err != nil {
		return nil, err
	}

	for i, r := range responses {
		if r.Status == StatusOK {
			p.providers.RecordFileProvider(refs[i], mode, regs[i].Context, r.FileID)
		}
	}
	return responses, nil
}

// UnregisterFileProviders removes file providers from the daemon's
// registry and the local cache.
func (p *Proxy) UnregisterFileProviders(ctx context.Context, refs []ProviderRef) error {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeRefs(enc, refs); err != nil {
		return err
	}
	if err := p.call(ctx, OrdinalUnregisterFileProviders, buf.Bytes(), nil); err != nil {
		return err
	}
	for _, ref := range refs {
		p.providers.ForgetFileProvider(ref.ProviderID)
	}
	return nil
}

// RegisterDevices announces devices to the daemon and caches every
// successful one for replay.
func (p *Proxy) RegisterDevices(ctx context.Context, devices []DeviceRegistration) ([]Response, error) {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(devices)); err != nil {
		return nil, err
	}
	for _, d := range devices {
		if err := d.encode(enc); err != nil {
			return nil, err
		}
	}

	var responses []Response
	err := p.call(ctx, OrdinalRegisterDevices, buf.Bytes(), func(dec *codec.Decoder) error {
		return decodeResponses(dec, &responses)
	})
	if err != nil {
		return nil, err
	}
	for i, r := range responses {
		if r.OK() {
			p.devices.Record(devices[i])
		}
	}
	return responses, nil
}

// UnregisterDevices removes devices from the daemon and the local cache.
func (p *Proxy) UnregisterDevices(ctx context.Context, ids []DeviceID) ([]Response, error) {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(ids)); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := id.encode(enc); err != nil {
			return nil, err
		}
	}

	var responses []Response
	err := p.call(ctx, OrdinalUnregisterDevices, buf.Bytes(), func(dec *codec.Decoder) error {
		return decodeResponses(dec, &responses)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p.devices.Forget(id)
	}
	return responses, nil
}

// UnregisterAllDevices removes every device in collectionID.
func (p *Proxy) UnregisterAllDevices(ctx context.Context, collectionID uint32) (Response, error) {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint32(collectionID); err != nil {
		return Response{}, err
	}

	var resp Response
	err := p.call(ctx, OrdinalUnregisterAllDevices, buf.Bytes(), func(dec *codec.Decoder) error {
		var err error
		resp, err = decodeResponse(dec)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	p.devices.ForgetCollection(collectionID)
	return resp, nil
}

// ReregisterProviders replays every cached device, parameter-provider, and
// file-provider registration, used after a reconnection re-establishes the
// transport.
func (p *Proxy) ReregisterProviders(ctx context.Context) error {
	if devices := p.devices.All(); len(devices) > 0 {
		if _, err := p.RegisterDevices(ctx, devices); err != nil {
			return fmt.Errorf("backend: reregister devices: %w", err)
		}
	}

	for _, e := range p.providers.AllParameterProviders() {
		reg := ParameterProviderRegistration{Ref: e.ref}
		if _, err := p.RegisterParameterProviders(ctx, []ParameterProviderRegistration{reg}, e.callMode); err != nil {
			return fmt.Errorf("backend: reregister parameter provider %d: %w", e.ref.ProviderID, err)
		}
	}

	for _, e := range p.providers.AllFileProviders() {
		reg := FileProviderReRegistration{Ref: e.ref, Context: e.context, ExistingFileID: e.fileID}
		if _, err := p.ReregisterFileProviders(ctx, []FileProviderReRegistration{reg}, e.callMode); err != nil {
			return fmt.Errorf("backend: reregister file provider %d: %w", e.ref.ProviderID, err)
		}
	}
	return nil
}

// ReregisterFileProviders re-establishes file providers under their
// previously assigned file ids.
func (p *Proxy) ReregisterFileProviders(ctx context.Context, regs []FileProviderReRegistration, mode CallMode) ([]FileIDResponse, error) {
	if len(regs) == 0 {
		return nil, nil
	}

	ids, err := p.createProxies(ctx, len(regs))
	if err != nil {
		return nil, err
	}
	metas := make([]ProviderMetadata, len(regs))
	for i, r := range regs {
		metas[i] = r.Metadata
	}
	if err := p.updateProxies(ctx, ids, metas); err != nil {
		return nil, err
	}

	refs := make([]ProviderRef, len(regs))
	for i, r := range regs {
		refs[i] = ProviderRef{ProviderID: ids[i], InterfaceVariant: r.Ref.InterfaceVariant}
		p.installProxyHandler(ids[i], mode, refs[i])
	}

	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(refs)); err != nil {
		return nil, err
	}
	for i := range refs {
		if err := refs[i].encode(enc); err != nil {
			return nil, err
		}
		if err := enc.EncodeString(regs[i].ExistingFileID); err != nil {
			return nil, err
		}
		if err := regs[i].Context.encode(enc); err != nil {
			return nil, err
		}
	}
	if err := encodeCallMode(enc, mode); err != nil {
		return nil, err
	}

	var responses []FileIDResponse
	err = p.call(ctx, OrdinalReregisterFileProviders, buf.Bytes(), func(dec *codec.Decoder) error {
		return decodeFileIDResponses(dec, &responses)
	})
	if err != nil {
		return nil, err
	}
	for i, r := range responses {
		if r.Status == StatusOK {
			p.providers.RecordFileProvider(refs[i], mode, regs[i].Context, r.FileID)
		}
	}
	return responses, nil
}

func encodeRefs(enc *codec.Encoder, refs []ProviderRef) error {
	if err := encodeCount(enc, len(refs)); err != nil {
		return err
	}
	for _, r := range refs {
		if err := r.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func decodeResponses(dec *codec.Decoder, out *[]Response) error {
	n, err := decodeCount(dec)
	if err != nil {
		return decodeErr("response count", err)
	}
	*out = make([]Response, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeResponse(dec)
		if err != nil {
			return decodeErr("response", err)
		}
		*out = append(*out, r)
	}
	return nil
}

func decodeFileIDResponses(dec *codec.Decoder, out *[]FileIDResponse) error {
	n, err := decodeCount(dec)
	if err != nil {
		return decodeErr("file id response count", err)
	}
	*out = make([]FileIDResponse, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeFileIDResponse(dec)
		if err != nil {
			return decodeErr("file id response", err)
		}
		*out = append(*out, r)
	}
	return nil
}
