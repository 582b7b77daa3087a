package provider

import (
	"context"
	"testing"
	"time"

	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/provider/fakeprovider"
)

func newFilePair(t *testing.T, mode backend.CallMode, target *fakeprovider.File) *FileProxy {
	t.Helper()
	proxySide, stubSide := newPipe()
	proxyMgr := manager.New(proxySide)
	stubMgr := manager.New(stubSide)

	stub := NewFileStub(stubMgr, 600, target)
	if err := stubMgr.Store().Add(600, stub); err != nil {
		t.Fatalf("install stub: %v", err)
	}

	dispatcher := NewDispatcher(mode, 0, 0)
	t.Cleanup(dispatcher.Close)
	proxy := NewFileProxy(proxyMgr, 901, 600, dispatcher)
	if err := proxy.Register(); err != nil {
		t.Fatalf("proxy.Register: %v", err)
	}
	return proxy
}

func TestFileProxyReadWriteRoundTrip(t *testing.T) {
	target := fakeprovider.NewFile([]byte("hello world"))
	proxy := newFilePair(t, backend.CallModeSerialized, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	read, err := proxy.Read(ctx, 6, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(read.Data) != "world" {
		t.Fatalf("read.Data = %q, want %q", read.Data, "world")
	}

	if _, err := proxy.Write(ctx, 6, []byte("GOLANG")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := proxy.GetFileInfo(ctx)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.FileSize != uint64(len("hello GOLANG")) {
		t.Fatalf("FileSize = %d, want %d", info.FileSize, len("hello GOLANG"))
	}

	read, err = proxy.Read(ctx, 0, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(read.Data) != "hello GOLANG" {
		t.Fatalf("read.Data = %q, want %q", read.Data, "hello GOLANG")
	}
}

func TestFileProxyCreateResetsContent(t *testing.T) {
	target := fakeprovider.NewFile([]byte("stale"))
	proxy := newFilePair(t, backend.CallModeConcurrent, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := proxy.Create(ctx, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("resp = %+v", resp)
	}

	info, err := proxy.GetFileInfo(ctx)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.FileSize != 0 {
		t.Fatalf("FileSize after create = %d, want 0", info.FileSize)
	}
}

func TestFileProxyWriteBeyondCapacityFails(t *testing.T) {
	target := fakeprovider.NewFile(nil)
	proxy := newFilePair(t, backend.CallModeConcurrent, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := target.Create(ctx, 4); err != nil {
		t.Fatalf("direct Create: %v", err)
	}

	resp, err := proxy.Write(ctx, 0, []byte("toolong"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if resp.Status != backend.StatusFileSizeExceeded {
		t.Fatalf("resp = %+v, want StatusFileSizeExceeded", resp)
	}
}
