// Package provider defines the parameter-provider and file-provider
// contracts the daemon calls into over the IPC layer, the per-provider
// call-mode dispatch policy (concurrent or serialized), and the
// generated-style proxy/stub pair that carries those calls across a
// manager.Manager connection.
package provider

import (
	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/backend"
)

// ValueResponse is one parameter's outcome from GetParameterValues.
type ValueResponse struct {
	ParameterID string
	Status      backend.Status
	Value       []byte
}

// SetRequest is one parameter write submitted to SetParameterValues.
type SetRequest struct {
	ParameterID string
	Value       []byte
}

// SetResponse is one parameter's outcome from a set operation.
type SetResponse struct {
	ParameterID string
	Status      backend.Status
}

// MethodResponse is the outcome of InvokeMethod.
type MethodResponse struct {
	Status      backend.Status
	ReturnValue []byte
}

// FileInfoResponse is the outcome of a file provider's GetFileInfo call:
// the file-transfer engine uses FileSize to compute ranges.
type FileInfoResponse struct {
	Status   backend.Status
	FileSize uint64
}

func (v ValueResponse) encode(enc *codec.Encoder) error {
	if err := enc.EncodeString(v.ParameterID); err != nil {
		return err
	}
	if err := enc.EncodeUint32(uint32(v.Status)); err != nil {
		return err
	}
	return enc.EncodeBytes(v.Value)
}

func decodeValueResponse(dec *codec.Decoder) (ValueResponse, error) {
	var v ValueResponse
	var err error
	if v.ParameterID, err = dec.DecodeString(); err != nil {
		return v, err
	}
	status, err := dec.DecodeUint32()
	if err != nil {
		return v, err
	}
	v.Status = backend.Status(status)
	if v.Value, err = dec.DecodeBytes(); err != nil {
		return v, err
	}
	return v, nil
}

func (r SetRequest) encode(enc *codec.Encoder) error {
	if err := enc.EncodeString(r.ParameterID); err != nil {
		return err
	}
	return enc.EncodeBytes(r.Value)
}

func decodeSetRequest(dec *codec.Decoder) (SetRequest, error) {
	var r SetRequest
	var err error
	if r.ParameterID, err = dec.DecodeString(); err != nil {
		return r, err
	}
	if r.Value, err = dec.DecodeBytes(); err != nil {
		return r, err
	}
	return r, nil
}

func (r SetResponse) encode(enc *codec.Encoder) error {
	if err := enc.EncodeString(r.ParameterID); err != nil {
		return err
	}
	return enc.EncodeUint32(uint32(r.Status))
}

func decodeSetResponse(dec *codec.Decoder) (SetResponse, error) {
	var r SetResponse
	var err error
	if r.ParameterID, err = dec.DecodeString(); err != nil {
		return r, err
	}
	status, err := dec.DecodeUint32()
	if err != nil {
		return r, err
	}
	r.Status = backend.Status(status)
	return r, nil
}

func encodeValueResponses(enc *codec.Encoder, vs []ValueResponse) error {
	if err := enc.EncodeUint64(uint64(len(vs))); err != nil {
		return err
	}
	for _, v := range vs {
		if err := v.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func decodeValueResponses(dec *codec.Decoder) ([]ValueResponse, error) {
	n, err := dec.DecodeUint64()
	if err != nil {
		return nil, err
	}
	out := make([]ValueResponse, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := decodeValueResponse(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeSetRequests(enc *codec.Encoder, rs []SetRequest) error {
	if err := enc.EncodeUint64(uint64(len(rs))); err != nil {
		return err
	}
	for _, r := range rs {
		if err := r.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func decodeSetRequests(dec *codec.Decoder) ([]SetRequest, error) {
	n, err := dec.DecodeUint64()
	if err != nil {
		return nil, err
	}
	out := make([]SetRequest, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeSetRequest(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func encodeSetResponses(enc *codec.Encoder, rs []SetResponse) error {
	if err := enc.EncodeUint64(uint64(len(rs))); err != nil {
		return err
	}
	for _, r := range rs {
		if err := r.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func decodeSetResponses(dec *codec.Decoder) ([]SetResponse, error) {
	n, err := dec.DecodeUint64()
	if err != nil {
		return nil, err
	}
	out := make([]SetResponse, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := decodeSetResponse(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m MethodResponse) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(uint32(m.Status)); err != nil {
		return err
	}
	return enc.EncodeBytes(m.ReturnValue)
}

func decodeMethodResponse(dec *codec.Decoder) (MethodResponse, error) {
	var m MethodResponse
	status, err := dec.DecodeUint32()
	if err != nil {
		return m, err
	}
	m.Status = backend.Status(status)
	if m.ReturnValue, err = dec.DecodeBytes(); err != nil {
		return m, err
	}
	return m, nil
}

func (f FileInfoResponse) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(uint32(f.Status)); err != nil {
		return err
	}
	return enc.EncodeUint64(f.FileSize)
}

func decodeFileInfoResponse(dec *codec.Decoder) (FileInfoResponse, error) {
	var f FileInfoResponse
	status, err := dec.DecodeUint32()
	if err != nil {
		return f, err
	}
	f.Status = backend.Status(status)
	if f.FileSize, err = dec.DecodeUint64(); err != nil {
		return f, err
	}
	return f, nil
}
