package codec

// FileReadStatus mirrors the file-provider read outcome carried alongside
// raw payload bytes. It is intentionally a plain uint32 rather than a
// richer domain status so FileReadResponse can stay on the fast path.
type FileReadStatus uint32

// FileReadResponse is the hot path of the file-transfer engine: the codec
// gives it a dedicated encoding (status, then raw data) instead of routing
// through the generic domain serializer.
type FileReadResponse struct {
	Status FileReadStatus
	Data   []byte
}

// EncodeFileReadResponse writes a FileReadResponse using its fast path:
// status as a uint32, followed by the raw bytes with no extra indirection.
func (e *Encoder) EncodeFileReadResponse(v FileReadResponse) error {
	if err := e.EncodeUint32(uint32(v.Status)); err != nil {
		return err
	}
	return e.EncodeBytes(v.Data)
}

// DecodeFileReadResponse reads a FileReadResponse written by EncodeFileReadResponse.
func (d *Decoder) DecodeFileReadResponse() (FileReadResponse, error) {
	status, err := d.DecodeUint32()
	if err != nil {
		return FileReadResponse{}, wrapErr("FileReadResponse", err)
	}
	data, err := d.DecodeBytes()
	if err != nil {
		return FileReadResponse{}, wrapErr("FileReadResponse", err)
	}
	return FileReadResponse{Status: FileReadStatus(status), Data: data}, nil
}

// EncodeOptionalString encodes an owned-pointer-style optional string: a
// presence byte followed by the value when present. Decoding always
// constructs a fresh string rather than aliasing encoder-side memory.
func (e *Encoder) EncodeOptionalString(v *string) error {
	if v == nil {
		return e.EncodeBool(false)
	}
	if err := e.EncodeBool(true); err != nil {
		return err
	}
	return e.EncodeString(*v)
}

// DecodeOptionalString decodes a value written by EncodeOptionalString.
func (d *Decoder) DecodeOptionalString() (*string, error) {
	present, err := d.DecodeBool()
	if err != nil {
		return nil, wrapErr("*string", err)
	}
	if !present {
		return nil, nil
	}
	s, err := d.DecodeString()
	if err != nil {
		return nil, wrapErr("*string", err)
	}
	return &s, nil
}

// EncodeOptionalUint32 encodes an owned-pointer-style optional uint32.
func (e *Encoder) EncodeOptionalUint32(v *uint32) error {
	if v == nil {
		return e.EncodeBool(false)
	}
	if err := e.EncodeBool(true); err != nil {
		return err
	}
	return e.EncodeUint32(*v)
}

// DecodeOptionalUint32 decodes a value written by EncodeOptionalUint32.
func (d *Decoder) DecodeOptionalUint32() (*uint32, error) {
	present, err := d.DecodeBool()
	if err != nil {
		return nil, wrapErr("*uint32", err)
	}
	if !present {
		return nil, nil
	}
	v, err := d.DecodeUint32()
	if err != nil {
		return nil, wrapErr("*uint32", err)
	}
	return &v, nil
}
