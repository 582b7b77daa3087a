package backend

import (
	"context"
	"testing"
	"time"

	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
)

// fakeRegistrar is a minimal Registrar that accepts everything and hands
// back sequential generated ids, enough to exercise the wire protocol
// end-to-end without a real provider registry.
type fakeRegistrar struct {
	nextID uint32
}

func (r *fakeRegistrar) CreateProviderProxies(n int) ([]object.ID, error) {
	ids := make([]object.ID, n)
	for i := range ids {
		r.nextID++
		ids[i] = 1000 + r.nextID
	}
	return ids, nil
}

func (r *fakeRegistrar) UpdateProviderProxies(ids []object.ID, metas []ProviderMetadata) error {
	return nil
}

func (r *fakeRegistrar) RegisterDevices(devices []DeviceRegistration) []Response {
	out := make([]Response, len(devices))
	for i := range devices {
		out[i] = Response{Status: StatusOK}
	}
	return out
}

func (r *fakeRegistrar) UnregisterDevices(ids []DeviceID) []Response {
	out := make([]Response, len(ids))
	for i := range ids {
		out[i] = Response{Status: StatusOK}
	}
	return out
}

func (r *fakeRegistrar) UnregisterAllDevices(collectionID uint32) Response {
	return Response{Status: StatusOK}
}

func (r *fakeRegistrar) RegisterParameterProviders(refs []ProviderRef, mode CallMode) []Response {
	out := make([]Response, len(refs))
	for i := range refs {
		out[i] = Response{Status: StatusOK}
	}
	return out
}

func (r *fakeRegistrar) UnregisterParameterProviders(refs []ProviderRef) []Response {
	out := make([]Response, len(refs))
	for i := range refs {
		out[i] = Response{Status: StatusOK}
	}
	return out
}

func (r *fakeRegistrar) RegisterFileProviders(refs []ProviderRef, contexts []FileProviderContext, mode CallMode) []FileIDResponse {
	out := make([]FileIDResponse, len(refs))
	for i := range refs {
		out[i] = FileIDResponse{Status: StatusOK, FileID: "file-1"}
	}
	return out
}

func (r *fakeRegistrar) ReregisterFileProviders(refs []ProviderRef, contexts []FileProviderContext, existingIDs []string, mode CallMode) []FileIDResponse {
	out := make([]FileIDResponse, len(refs))
	for i, id := range existingIDs {
		out[i] = FileIDResponse{Status: StatusOK, FileID: id}
	}
	return out
}

func (r *fakeRegistrar) UnregisterFileProviders(refs []ProviderRef) []Response {
	out := make([]Response, len(refs))
	for i := range refs {
		out[i] = Response{Status: StatusOK}
	}
	return out
}

func newHandshakePair(t *testing.T) (*Proxy, *fakeRegistrar) {
	t.Helper()
	proxySide, stubSide := newPipe()

	proxyMgr := manager.New(proxySide)
	stubMgr := manager.New(stubSide)

	registrar := &fakeRegistrar{}
	stub := NewStub(stubMgr, registrar)
	if err := stub.Register(); err != nil {
		t.Fatalf("stub.Register: %v", err)
	}

	proxy := NewProxy(proxyMgr, BackendObjectID, nil)
	if err := proxy.Register(); err != nil {
		t.Fatalf("proxy.Register: %v", err)
	}
	return proxy, registrar
}

func TestRegisterDevicesRoundTrip(t *testing.T) {
	proxy, _ := newHandshakePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	devices := []DeviceRegistration{
		{Slot: 1, CollectionID: 2, OrderNumber: "750-123", FirmwareVersion: "1.0.0"},
	}
	responses, err := proxy.RegisterDevices(ctx, devices)
	if err != nil {
		t.Fatalf("RegisterDevices: %v", err)
	}
	if len(responses) != 1 || !responses[0].OK() {
		t.Fatalf("responses = %+v", responses)
	}
	if all := proxy.devices.All(); len(all) != 1 {
		t.Fatalf("device cache = %+v, want 1 entry", all)
	}
}

func TestRegisterParameterProvidersRoundTrip(t *testing.T) {
	proxy, _ := newHandshakePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	regs := []ParameterProviderRegistration{
		{Ref: ProviderRef{InterfaceVariant: "parameter"}, Metadata: ProviderMetadata{DisplayName: "demo"}},
	}
	responses, err := proxy.RegisterParameterProviders(ctx, regs, CallModeConcurrent)
	if err != nil {
		t.Fatalf("RegisterParameterProviders: %v", err)
	}
	if len(responses) != 1 || !responses[0].OK() {
		t.Fatalf("responses = %+v", responses)
	}
	if all := proxy.providers.AllParameterProviders(); len(all) != 1 {
		t.Fatalf("provider cache = %+v, want 1 entry", all)
	}
}

func TestRegisterFileProvidersRoundTrip(t *testing.T) {
	proxy, _ := newHandshakePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	regs := []FileProviderRegistration{
		{
			Ref:      ProviderRef{InterfaceVariant: "file"},
			Metadata: ProviderMetadata{DisplayName: "demo-file"},
			Context:  FileProviderContext{ParameterPath: "/device/0/firmware"},
		},
	}
	responses, err := proxy.RegisterFileProviders(ctx, regs, CallModeSerialized)
	if err != nil {
		t.Fatalf("RegisterFileProviders: %v", err)
	}
	if len(responses) != 1 || responses[0].Status != StatusOK || responses[0].FileID == "" {
		t.Fatalf("responses = %+v", responses)
	}
}

func TestUnregisterAllDevicesRoundTrip(t *testing.T) {
	proxy, _ := newHandshakePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := proxy.RegisterDevices(ctx, []DeviceRegistration{{Slot: 1, CollectionID: 9}}); err != nil {
		t.Fatalf("RegisterDevices: %v", err)
	}
	resp, err := proxy.UnregisterAllDevices(ctx, 9)
	if err != nil {
		t.Fatalf("UnregisterAllDevices: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("resp = %+v", resp)
	}
	if all := proxy.devices.All(); len(all) != 0 {
		t.Fatalf("device cache after unregister = %+v, want empty", all)
	}
}

func TestReregisterProvidersReplaysCache(t *testing.T) {
	proxy, registrar := newHandshakePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := proxy.RegisterDevices(ctx, []DeviceRegistration{{Slot: 1, CollectionID: 2}}); err != nil {
		t.Fatalf("RegisterDevices: %v", err)
	}
	if _, err := proxy.RegisterParameterProviders(ctx, []ParameterProviderRegistration{
		{Ref: ProviderRef{InterfaceVariant: "parameter"}},
	}, CallModeConcurrent); err != nil {
		t.Fatalf("RegisterParameterProviders: %v", err)
	}

	before := registrar.nextID
	if err := proxy.ReregisterProviders(ctx); err != nil {
		t.Fatalf("ReregisterProviders: %v", err)
	}
	if registrar.nextID <= before {
		t.Fatalf("expected reregistration to allocate fresh proxy ids, nextID stayed at %d", registrar.nextID)
	}
}
