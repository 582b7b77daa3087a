package proxystub

import (
	"testing"
)

func TestPendingCallsResolve(t *testing.T) {
	var pc PendingCalls
	id := pc.NewCallID()

	got := make(chan []byte, 1)
	pc.Register(id, func(body []byte, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		got <- body
	})

	pc.Resolve(id, []byte("reply"), nil)

	select {
	case body := <-got:
		if string(body) != "reply" {
			t.Fatalf("got %q", body)
		}
	default:
		t.Fatal("completion was not invoked")
	}
}

func TestPendingCallsResolveIgnoresUnknownID(t *testing.T) {
	var pc PendingCalls
	// Resolving an id that was never registered must not panic.
	pc.Resolve(999, []byte("x"), nil)
}

func TestPendingCallsDropAll(t *testing.T) {
	var pc PendingCalls
	id1 := pc.NewCallID()
	id2 := pc.NewCallID()

	errs := make(chan error, 2)
	pc.Register(id1, func(_ []byte, err error) { errs <- err })
	pc.Register(id2, func(_ []byte, err error) { errs <- err })

	pc.DropAll()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != ErrDropped {
			t.Fatalf("got %v, want ErrDropped", err)
		}
	}
}

func TestStubDecodeHeaderRoundTrip(t *testing.T) {
	var pc PendingCalls
	base := &ProxyBase{PendingCalls: pc}
	_ = base

	stub := &StubBase{}
	// Build a header manually mirroring ProxyBase.Call's wire layout.
	body := []byte{
		0x07, 0x00, 0x00, 0x00, // method ordinal = 7
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // call id = 1
		'a', 'r', 'g', 's',
	}
	ordinal, callID, rest, err := stub.DecodeHeader(body)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if ordinal != 7 {
		t.Fatalf("ordinal = %d, want 7", ordinal)
	}
	if callID != 1 {
		t.Fatalf("callID = %d, want 1", callID)
	}
	if string(rest) != "args" {
		t.Fatalf("rest = %q, want args", rest)
	}
}

func TestStubDecodeHeaderShortRead(t *testing.T) {
	stub := &StubBase{}
	if _, _, _, err := stub.DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short header")
	}
}
