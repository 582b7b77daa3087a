// Package fakeprovider supplies in-memory Parameter and File
// implementations for tests: a fixed table of parameter values and a
// growable byte buffer standing in for a real out-of-process provider.
package fakeprovider

import (
	"context"
	"sync"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/provider"
)

// Parameter is a fixed-table parameter provider: GetParameterValues answers
// from a map set at construction, SetParameterValues writes back into it.
// Every parameter id not in the table reports StatusUnknownParameterPath.
type Parameter struct {
	mu     sync.Mutex
	values map[string][]byte

	// InvokeResult is returned verbatim by InvokeMethod (the zero value
	// when unset).
	InvokeResult provider.MethodResponse
	// Uploads tracks ids handed out by CreateParameterUploadID so tests can
	// assert RemoveParameterUploadID is called with a matching id.
	Uploads map[string]string
}

// NewParameter returns a Parameter seeded with initial.
func NewParameter(initial map[string][]byte) *Parameter {
	values := make(map[string][]byte, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Parameter{values: values, Uploads: make(map[string]string)}
}

// GetParameterValues implements provider.Parameter.
func (p *Parameter) GetParameterValues(_ context.Context, ids []string) ([]provider.ValueResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.ValueResponse, len(ids))
	for i, id := range ids {
		v, ok := p.values[id]
		if !ok {
			out[i] = provider.ValueResponse{ParameterID: id, Status: backend.StatusUnknownParameterPath}
			continue
		}
		out[i] = provider.ValueResponse{ParameterID: id, Status: backend.StatusOK, Value: v}
	}
	return out, nil
}

// SetParameterValues implements provider.Parameter.
func (p *Parameter) SetParameterValues(_ context.Context, reqs []provider.SetRequest) ([]provider.SetResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.SetResponse, len(reqs))
	for i, r := range reqs {
		if _, ok := p.values[r.ParameterID]; !ok {
			out[i] = provider.SetResponse{ParameterID: r.ParameterID, Status: backend.StatusUnknownParameterPath}
			continue
		}
		p.values[r.ParameterID] = r.Value
		out[i] = provider.SetResponse{ParameterID: r.ParameterID, Status: backend.StatusOK}
	}
	return out, nil
}

// SetParameterValuesConnectionAware implements provider.Parameter,
// ignoring deferResponse: the fake always answers synchronously.
func (p *Parameter) SetParameterValuesConnectionAware(ctx context.Context, reqs []provider.SetRequest, _ bool) ([]provider.SetResponse, error) {
	return p.SetParameterValues(ctx, reqs)
}

// InvokeMethod implements provider.Parameter, returning InvokeResult.
func (p *Parameter) InvokeMethod(context.Context, string, []byte) (provider.MethodResponse, error) {
	return p.InvokeResult, nil
}

// CreateParameterUploadID implements provider.Parameter, returning the id
// paramContext + "#upload" (the same id for every call with the same
// paramContext).
func (p *Parameter) CreateParameterUploadID(_ context.Context, paramContext string) (backend.FileIDResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := paramContext + "#upload"
	p.Uploads[id] = paramContext
	return backend.FileIDResponse{Status: backend.StatusOK, FileID: id}, nil
}

// RemoveParameterUploadID implements provider.Parameter.
func (p *Parameter) RemoveParameterUploadID(_ context.Context, fileID, _ string) (backend.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Uploads[fileID]; !ok {
		return backend.Response{Status: backend.StatusUnknownFileID}, nil
	}
	delete(p.Uploads, fileID)
	return backend.Response{Status: backend.StatusOK}, nil
}

// File is an in-memory growable-buffer file provider.
type File struct {
	mu       sync.Mutex
	data     []byte
	capacity uint64
}

// NewFile returns a File seeded with initial contents. Its capacity is
// unbounded until Create sets one.
func NewFile(initial []byte) *File {
	buf := make([]byte, len(initial))
	copy(buf, initial)
	return &File{data: buf, capacity: ^uint64(0)}
}

// Read implements provider.File, clamping length to the available data past
// offset per the core read semantics (no error for a short final read).
func (f *File) Read(_ context.Context, offset, length uint64) (codec.FileReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= uint64(len(f.data)) {
		return codec.FileReadResponse{Status: codec.FileReadStatus(backend.StatusOK)}, nil
	}
	end := offset + length
	if end > uint64(len(f.data)) {
		end = uint64(len(f.data))
	}
	out := make([]byte, end-offset)
	copy(out, f.data[offset:end])
	return codec.FileReadResponse{Status: codec.FileReadStatus(backend.StatusOK), Data: out}, nil
}

// Write implements provider.File, growing the buffer as needed up to the
// capacity set by Create; a write past it reports StatusFileSizeExceeded.
func (f *File) Write(_ context.Context, offset uint64, data []byte) (backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := offset + uint64(len(data))
	if end > f.capacity {
		return backend.Response{Status: backend.StatusFileSizeExceeded}, nil
	}
	if end > uint64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[offset:end], data)
	return backend.Response{Status: backend.StatusOK}, nil
}

// GetFileInfo implements provider.File.
func (f *File) GetFileInfo(context.Context) (provider.FileInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return provider.FileInfoResponse{Status: backend.StatusOK, FileSize: uint64(len(f.data))}, nil
}

// Create implements provider.File, resetting the buffer to an empty file
// with the given capacity.
func (f *File) Create(_ context.Context, capacity uint64) (backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
	f.capacity = capacity
	return backend.Response{Status: backend.StatusOK}, nil
}
