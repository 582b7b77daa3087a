package provider

import (
	"context"
	"testing"
	"time"

	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/provider/fakeprovider"
)

func newParameterPair(t *testing.T, mode backend.CallMode, target *fakeprovider.Parameter) *ParameterProxy {
	t.Helper()
	proxySide, stubSide := newPipe()
	proxyMgr := manager.New(proxySide)
	stubMgr := manager.New(stubSide)

	stub := NewParameterStub(stubMgr, 500, target)
	if err := stubMgr.Store().Add(500, stub); err != nil {
		t.Fatalf("install stub: %v", err)
	}

	dispatcher := NewDispatcher(mode, 0, 0)
	t.Cleanup(dispatcher.Close)
	proxy := NewParameterProxy(proxyMgr, 900, 500, dispatcher)
	if err := proxy.Register(); err != nil {
		t.Fatalf("proxy.Register: %v", err)
	}
	return proxy
}

func TestParameterProxyGetValuesRoundTrip(t *testing.T) {
	target := fakeprovider.NewParameter(map[string][]byte{"/dev/0/speed": []byte{0x2A}})
	proxy := newParameterPair(t, backend.CallModeConcurrent, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	values, err := proxy.GetParameterValues(ctx, []string{"/dev/0/speed", "/dev/0/missing"})
	if err != nil {
		t.Fatalf("GetParameterValues: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("got %d values, want 2", len(values))
	}
	if values[0].Status != backend.StatusOK || values[0].Value[0] != 0x2A {
		t.Fatalf("values[0] = %+v", values[0])
	}
	if values[1].Status != backend.StatusUnknownParameterPath {
		t.Fatalf("values[1] = %+v", values[1])
	}
}

func TestParameterProxySetValuesRoundTrip(t *testing.T) {
	target := fakeprovider.NewParameter(map[string][]byte{"/dev/0/speed": []byte{0x00}})
	proxy := newParameterPair(t, backend.CallModeSerialized, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	responses, err := proxy.SetParameterValues(ctx, []SetRequest{
		{ParameterID: "/dev/0/speed", Value: []byte{0x7F}},
		{ParameterID: "/dev/0/missing", Value: []byte{0x01}},
	})
	if err != nil {
		t.Fatalf("SetParameterValues: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].Status != backend.StatusOK {
		t.Fatalf("responses[0] = %+v", responses[0])
	}
	if responses[1].Status != backend.StatusUnknownParameterPath {
		t.Fatalf("responses[1] = %+v", responses[1])
	}

	values, err := proxy.GetParameterValues(ctx, []string{"/dev/0/speed"})
	if err != nil {
		t.Fatalf("GetParameterValues: %v", err)
	}
	if values[0].Value[0] != 0x7F {
		t.Fatalf("value after set = %+v, want 0x7F", values[0])
	}
}

func TestParameterProxyUploadLifecycleRoundTrip(t *testing.T) {
	target := fakeprovider.NewParameter(nil)
	proxy := newParameterPair(t, backend.CallModeConcurrent, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	created, err := proxy.CreateParameterUploadID(ctx, "/dev/0/firmware")
	if err != nil {
		t.Fatalf("CreateParameterUploadID: %v", err)
	}
	if created.Status != backend.StatusOK || created.FileID == "" {
		t.Fatalf("created = %+v", created)
	}

	removed, err := proxy.RemoveParameterUploadID(ctx, created.FileID, "/dev/0/firmware")
	if err != nil {
		t.Fatalf("RemoveParameterUploadID: %v", err)
	}
	if !removed.OK() {
		t.Fatalf("removed = %+v", removed)
	}
}
