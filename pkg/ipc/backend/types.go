// Package backend implements the well-known backend proxy/stub at object id
// 0: the registration lifecycle every out-of-process provider client goes
// through to announce devices, parameter providers, and file providers to
// the daemon, plus the replay-on-reconnect path.
package backend

import (
	"bytes"
	"fmt"

	"github.com/parasvc/fabric/internal/codec"
)

// CallMode is the per-provider dispatch policy.
type CallMode uint8

const (
	// CallModeConcurrent lets the dispatcher issue any number of calls to
	// the provider in parallel.
	CallModeConcurrent CallMode = iota
	// CallModeSerialized forces the dispatcher to wait for each call's
	// future to resolve before issuing the next.
	CallModeSerialized
)

func (m CallMode) String() string {
	if m == CallModeSerialized {
		return "serialized"
	}
	return "concurrent"
}

// Status is a core domain status code, carried verbatim through the IPC
// layer.
type Status uint32

const (
	StatusOK Status = iota
	StatusUnknownDeviceCollection
	StatusUnknownDevice
	StatusUnknownParameterPath
	StatusUnknownClassInstancePath
	StatusNotAFileID
	StatusLogicError
	StatusInvalidValue
	StatusFileSizeExceeded
	StatusUnknownFileID
	StatusUnauthorized
	StatusUploadIDMaxExceeded
	StatusFileNotAccessible
)

// DeviceID is the canonical device identity: the (slot, collection id)
// pair.
type DeviceID struct {
	Slot         uint32
	CollectionID uint32
}

// DeviceRegistration is the record a provider client sends for each
// physical or virtual device it fronts.
type DeviceRegistration struct {
	Slot            uint32 `validate:"required"`
	CollectionID    uint32
	OrderNumber     string `validate:"required,max=128"`
	FirmwareVersion string `validate:"max=64"`
}

// ID returns the registration's canonical DeviceID.
func (d DeviceRegistration) ID() DeviceID {
	return DeviceID{Slot: d.Slot, CollectionID: d.CollectionID}
}

// ProviderRef names a provider by the object id of its client-side stub
// and the interface variant it implements (e.g. "parameter", "model",
// "device_description").
type ProviderRef struct {
	ProviderID       uint32
	InterfaceVariant string `validate:"required,max=64"`
}

// FileProviderContext is the parameter-instance path context a file
// provider is registered under.
type FileProviderContext struct {
	ParameterPath string `validate:"required,max=1024"`
}

// Response is the per-registration outcome returned by the daemon.
type Response struct {
	Status Status
}

// OK reports whether the response indicates success.
func (r Response) OK() bool { return r.Status == StatusOK }

// FileIDResponse is the outcome of registering or re-registering a file
// provider: on success it carries the daemon-assigned file id.
type FileIDResponse struct {
	Status Status
	FileID string
}

func newEncBuf() (*codec.Encoder, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return codec.NewEncoder(buf), buf
}

func (d DeviceRegistration) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(d.Slot); err != nil {
		return err
	}
	if err := enc.EncodeUint32(d.CollectionID); err != nil {
		return err
	}
	if err := enc.EncodeString(d.OrderNumber); err != nil {
		return err
	}
	return enc.EncodeString(d.FirmwareVersion)
}

func decodeDeviceRegistration(dec *codec.Decoder) (DeviceRegistration, error) {
	var d DeviceRegistration
	var err error
	if d.Slot, err = dec.DecodeUint32(); err != nil {
		return d, err
	}
	if d.CollectionID, err = dec.DecodeUint32(); err != nil {
		return d, err
	}
	if d.OrderNumber, err = dec.DecodeString(); err != nil {
		return d, err
	}
	if d.FirmwareVersion, err = dec.DecodeString(); err != nil {
		return d, err
	}
	return d, nil
}

func (id DeviceID) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(id.Slot); err != nil {
		return err
	}
	return enc.EncodeUint32(id.CollectionID)
}

func decodeDeviceID(dec *codec.Decoder) (DeviceID, error) {
	var id DeviceID
	var err error
	if id.Slot, err = dec.DecodeUint32(); err != nil {
		return id, err
	}
	if id.CollectionID, err = dec.DecodeUint32(); err != nil {
		return id, err
	}
	return id, nil
}

func (p ProviderRef) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(p.ProviderID); err != nil {
		return err
	}
	return enc.EncodeString(p.InterfaceVariant)
}

func decodeProviderRef(dec *codec.Decoder) (ProviderRef, error) {
	var p ProviderRef
	var err error
	if p.ProviderID, err = dec.DecodeUint32(); err != nil {
		return p, err
	}
	if p.InterfaceVariant, err = dec.DecodeString(); err != nil {
		return p, err
	}
	return p, nil
}

func (r Response) encode(enc *codec.Encoder) error {
	return enc.EncodeUint32(uint32(r.Status))
}

func decodeResponse(dec *codec.Decoder) (Response, error) {
	v, err := dec.DecodeUint32()
	return Response{Status: Status(v)}, err
}

func (r FileIDResponse) encode(enc *codec.Encoder) error {
	if err := enc.EncodeUint32(uint32(r.Status)); err != nil {
		return err
	}
	return enc.EncodeString(r.FileID)
}

func decodeFileIDResponse(dec *codec.Decoder) (FileIDResponse, error) {
	var r FileIDResponse
	status, err := dec.DecodeUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(status)
	if r.FileID, err = dec.DecodeString(); err != nil {
		return r, err
	}
	return r, nil
}

func decodeErr(what string, err error) error {
	return fmt.Errorf("backend: decode %s: %w", what, err)
}

func encodeCallMode(enc *codec.Encoder, mode CallMode) error {
	return enc.EncodeUint8(uint8(mode))
}

func decodeCallMode(dec *codec.Decoder) (CallMode, error) {
	v, err := dec.DecodeUint8()
	return CallMode(v), err
}

func (m ProviderMetadata) encode(enc *codec.Encoder) error {
	if err := enc.EncodeString(m.DisplayName); err != nil {
		return err
	}
	if err := enc.EncodeStringSlice(m.ProvidedSelectors); err != nil {
		return err
	}
	return enc.EncodeStringSlice(m.Capabilities)
}

func decodeProviderMetadata(dec *codec.Decoder) (ProviderMetadata, error) {
	var m ProviderMetadata
	var err error
	if m.DisplayName, err = dec.DecodeString(); err != nil {
		return m, err
	}
	if m.ProvidedSelectors, err = dec.DecodeStringSlice(); err != nil {
		return m, err
	}
	if m.Capabilities, err = dec.DecodeStringSlice(); err != nil {
		return m, err
	}
	return m, nil
}

func (c FileProviderContext) encode(enc *codec.Encoder) error {
	return enc.EncodeString(c.ParameterPath)
}

func decodeFileProviderContext(dec *codec.Decoder) (FileProviderContext, error) {
	path, err := dec.DecodeString()
	return FileProviderContext{ParameterPath: path}, err
}

// encodeCount writes a u64 count prefix ahead of a sequence of composite
// elements.
func encodeCount(enc *codec.Encoder, n int) error {
	return enc.EncodeUint64(uint64(n))
}

func decodeCount(dec *codec.Decoder) (uint64, error) {
	return dec.DecodeUint64()
}
