package provider

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/proxystub"
)

// replyHeaderSize is the fixed length of (reply_kind uint8, call_id uint64)
// at the front of every stub reply body.
const replyHeaderSize = 1 + 8

// handleProxyReply decodes a (ReplyKind, callID) reply header and resolves
// the matching pending call on pending. Shared by ParameterProxy and
// FileProxy, whose HandleMessage implementations are otherwise identical.
func handleProxyReply(pending *proxystub.PendingCalls, body []byte) error {
	if len(body) < replyHeaderSize {
		return fmt.Errorf("provider proxy: reply header short read")
	}
	kind := body[0]
	callID := binary.LittleEndian.Uint64(body[1:9])
	if proxystub.ReplyKind(kind) != proxystub.ReturnForCall {
		return fmt.Errorf("provider proxy: unexpected reply kind %d", kind)
	}
	pending.Resolve(callID, body[replyHeaderSize:], nil)
	return nil
}

// callRoundTrip performs a blocking call(ordinal, args) -> decode(reply)
// round trip over base, bounded by ctx.
func callRoundTrip(ctx context.Context, base *proxystub.ProxyBase, ordinal uint32, args []byte, decode func(*codec.Decoder) error) error {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	base.Call(ordinal, args, func(body []byte, err error) {
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
