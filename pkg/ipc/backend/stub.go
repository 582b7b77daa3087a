package backend

import (
	"bytes"
	"fmt"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/ipc/proxystub"
)

// Registrar is the daemon-side authority that actually holds the device and
// provider registries. Stub forwards every decoded call to it and turns the
// result back into a wire reply.
type Registrar interface {
	CreateProviderProxies(n int) ([]object.ID, error)
	UpdateProviderProxies(ids []object.ID, metas []ProviderMetadata) error

	RegisterDevices(devices []DeviceRegistration) []Response
	UnregisterDevices(ids []DeviceID) []Response
	UnregisterAllDevices(collectionID uint32) Response

	RegisterParameterProviders(refs []ProviderRef, mode CallMode) []Response
	UnregisterParameterProviders(refs []ProviderRef) []Response

	RegisterFileProviders(refs []ProviderRef, contexts []FileProviderContext, mode CallMode) []FileIDResponse
	ReregisterFileProviders(refs []ProviderRef, contexts []FileProviderContext, existingIDs []string, mode CallMode) []FileIDResponse
	UnregisterFileProviders(refs []ProviderRef) []Response
}

// Stub is the daemon-side half of the backend proxy/stub pair. It lives at
// object id 0 and is installed in the object store once per connection.
type Stub struct {
	base      *proxystub.StubBase
	registrar Registrar
}

// NewStub constructs a Stub bound to mgr at id 0, forwarding every call to
// registrar.
func NewStub(mgr *manager.Manager, registrar Registrar) *Stub {
	return &Stub{
		base:      &proxystub.StubBase{Manager: mgr, SelfID: BackendObjectID},
		registrar: registrar,
	}
}

// Register installs the stub into its manager's object store at
// BackendObjectID, so inbound call frames addressed to id 0 reach
// HandleMessage.
func (s *Stub) Register() error {
	return s.base.Manager.Store().Add(BackendObjectID, s)
}

// HandleMessage implements object.Handler. It decodes the call header,
// dispatches on the method ordinal, and replies with the registrar's result.
func (s *Stub) HandleMessage(body []byte) error {
	ordinal, callID, rest, err := s.base.DecodeHeader(body)
	if err != nil {
		return fmt.Errorf("backend stub: decode header: %w", err)
	}

	dec := codec.NewDecoder(bytes.NewReader(rest))
	reply, err := s.dispatch(ordinal, dec)
	if err != nil {
		return fmt.Errorf("backend stub: ordinal %d: %w", ordinal, err)
	}
	s.base.Reply(BackendObjectID, callID, reply)
	return nil
}

func (s *Stub) dispatch(ordinal uint32, dec *codec.Decoder) ([]byte, error) {
	switch ordinal {
	case OrdinalCreateProviderProxies:
		return s.handleCreateProviderProxies(dec)
	case OrdinalUpdateProviderProxies:
		return s.handleUpdateProviderProxies(dec)
	case OrdinalRegisterDevices:
		return s.handleRegisterDevices(dec)
	case OrdinalUnregisterDevices:
		return s.handleUnregisterDevices(dec)
	case OrdinalUnregisterAllDevices:
		return s.handleUnregisterAllDevices(dec)
	case OrdinalRegisterParameterProviders:
		return s.handleRegisterParameterProviders(dec)
	case OrdinalUnregisterParameterProviders:
		return s.handleUnregisterParameterProviders(dec)
	case OrdinalRegisterFileProviders:
		return s.handleRegisterFileProviders(dec)
	case OrdinalReregisterFileProviders:
		return s.handleReregisterFileProviders(dec)
	case OrdinalUnregisterFileProviders:
		return s.handleUnregisterFileProviders(dec)
	default:
		return nil, fmt.Errorf("unknown ordinal %d", ordinal)
	}
}

func (s *Stub) handleCreateProviderProxies(dec *codec.Decoder) ([]byte, error) {
	n, err := dec.DecodeUint32()
	if err != nil {
		return nil, decodeErr("create proxies count", err)
	}
	ids, err := s.registrar.CreateProviderProxies(int(n))
	if err != nil {
		return nil, err
	}
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := enc.EncodeUint32Slice(ids); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Stub) handleUpdateProviderProxies(dec *codec.Decoder) ([]byte, error) {
	ids, err := dec.DecodeUint32Slice()
	if err != nil {
		return nil, decodeErr("update proxies ids", err)
	}
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("update proxies metadata count", err)
	}
	metas := make([]ProviderMetadata, 0, n)
	for i := uint64(0); i < n; i++ {
		m, err := decodeProviderMetadata(dec)
		if err != nil {
			return nil, decodeErr("provider metadata", err)
		}
		metas = append(metas, m)
	}
	if err := s.registrar.UpdateProviderProxies(ids, metas); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Stub) handleRegisterDevices(dec *codec.Decoder) ([]byte, error) {
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("register devices count", err)
	}
	devices := make([]DeviceRegistration, 0, n)
	for i := uint64(0); i < n; i++ {
		d, err := decodeDeviceRegistration(dec)
		if err != nil {
			return nil, decodeErr("device registration", err)
		}
		devices = append(devices, d)
	}
	return encodeResponses(s.registrar.RegisterDevices(devices))
}

func (s *Stub) handleUnregisterDevices(dec *codec.Decoder) ([]byte, error) {
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("unregister devices count", err)
	}
	ids := make([]DeviceID, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := decodeDeviceID(dec)
		if err != nil {
			return nil, decodeErr("device id", err)
		}
		ids = append(ids, id)
	}
	return encodeResponses(s.registrar.UnregisterDevices(ids))
}

func (s *Stub) handleUnregisterAllDevices(dec *codec.Decoder) ([]byte, error) {
	collectionID, err := dec.DecodeUint32()
	if err != nil {
		return nil, decodeErr("collection id", err)
	}
	resp := s.registrar.UnregisterAllDevices(collectionID)
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := resp.encode(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRefs(dec *codec.Decoder) ([]ProviderRef, error) {
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("provider ref count", err)
	}
	refs := make([]ProviderRef, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeProviderRef(dec)
		if err != nil {
			return nil, decodeErr("provider ref", err)
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func (s *Stub) handleRegisterParameterProviders(dec *codec.Decoder) ([]byte, error) {
	refs, err := decodeRefs(dec)
	if err != nil {
		return nil, err
	}
	mode, err := decodeCallMode(dec)
	if err != nil {
		return nil, decodeErr("call mode", err)
	}
	return encodeResponses(s.registrar.RegisterParameterProviders(refs, mode))
}

func (s *Stub) handleUnregisterParameterProviders(dec *codec.Decoder) ([]byte, error) {
	refs, err := decodeRefs(dec)
	if err != nil {
		return nil, err
	}
	return encodeResponses(s.registrar.UnregisterParameterProviders(refs))
}

func (s *Stub) handleRegisterFileProviders(dec *codec.Decoder) ([]byte, error) {
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("register file providers count", err)
	}
	refs := make([]ProviderRef, 0, n)
	contexts := make([]FileProviderContext, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeProviderRef(dec)
		if err != nil {
			return nil, decodeErr("provider ref", err)
		}
		c, err := decodeFileProviderContext(dec)
		if err != nil {
			return nil, decodeErr("file provider context", err)
		}
		refs = append(refs, r)
		contexts = append(contexts, c)
	}
	mode, err := decodeCallMode(dec)
	if err != nil {
		return nil, decodeErr("call mode", err)
	}
	return encodeFileIDResponses(s.registrar.RegisterFileProviders(refs, contexts, mode))
}

func (s *Stub) handleReregisterFileProviders(dec *codec.Decoder) ([]byte, error) {
	n, err := decodeCount(dec)
	if err != nil {
		return nil, decodeErr("reregister file providers count", err)
	}
	refs := make([]ProviderRef, 0, n)
	existingIDs := make([]string, 0, n)
	contexts := make([]FileProviderContext, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeProviderRef(dec)
		if err != nil {
			return nil, decodeErr("provider ref", err)
		}
		fileID, err := dec.DecodeString()
		if err != nil {
			return nil, decodeErr("existing file id", err)
		}
		c, err := decodeFileProviderContext(dec)
		if err != nil {
			return nil, decodeErr("file provider context", err)
		}
		refs = append(refs, r)
		existingIDs = append(existingIDs, fileID)
		contexts = append(contexts, c)
	}
	mode, err := decodeCallMode(dec)
	if err != nil {
		return nil, decodeErr("call mode", err)
	}
	return encodeFileIDResponses(s.registrar.ReregisterFileProviders(refs, contexts, existingIDs, mode))
}

func (s *Stub) handleUnregisterFileProviders(dec *codec.Decoder) ([]byte, error) {
	refs, err := decodeRefs(dec)
	if err != nil {
		return nil, err
	}
	return encodeResponses(s.registrar.UnregisterFileProviders(refs))
}

func encodeResponses(responses []Response) ([]byte, error) {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(responses)); err != nil {
		return nil, err
	}
	for _, r := range responses {
		if err := r.encode(enc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeFileIDResponses(responses []FileIDResponse) ([]byte, error) {
	buf := encBuf()
	enc := codec.NewEncoder(buf)
	if err := encodeCount(enc, len(responses)); err != nil {
		return nil, err
	}
	for _, r := range responses {
		if err := r.encode(enc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
