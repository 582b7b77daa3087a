package codec

import (
	"bytes"
	"errors"
	"testing"
)

func roundTrip(t *testing.T, name string, encode func(*Encoder) error, decode func(*Decoder) error) {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(NewEncoder(&buf)); err != nil {
		t.Fatalf("%s: encode: %v", name, err)
	}
	if err := decode(NewDecoder(&buf)); err != nil {
		t.Fatalf("%s: decode: %v", name, err)
	}
}

func TestScalarRoundTrip(t *testing.T) {
	roundTrip(t, "uint8", func(e *Encoder) error { return e.EncodeUint8(0xAB) }, func(d *Decoder) error {
		v, err := d.DecodeUint8()
		if err == nil && v != 0xAB {
			t.Errorf("got %#x, want 0xAB", v)
		}
		return err
	})

	roundTrip(t, "bool true", func(e *Encoder) error { return e.EncodeBool(true) }, func(d *Decoder) error {
		v, err := d.DecodeBool()
		if err == nil && v != true {
			t.Errorf("got %v, want true", v)
		}
		return err
	})

	roundTrip(t, "uint32", func(e *Encoder) error { return e.EncodeUint32(123456789) }, func(d *Decoder) error {
		v, err := d.DecodeUint32()
		if err == nil && v != 123456789 {
			t.Errorf("got %d, want 123456789", v)
		}
		return err
	})

	roundTrip(t, "int32 negative", func(e *Encoder) error { return e.EncodeInt32(-42) }, func(d *Decoder) error {
		v, err := d.DecodeInt32()
		if err == nil && v != -42 {
			t.Errorf("got %d, want -42", v)
		}
		return err
	})

	roundTrip(t, "uint64", func(e *Encoder) error { return e.EncodeUint64(1 << 40) }, func(d *Decoder) error {
		v, err := d.DecodeUint64()
		if err == nil && v != 1<<40 {
			t.Errorf("got %d, want %d", v, 1<<40)
		}
		return err
	})

	roundTrip(t, "float64", func(e *Encoder) error { return e.EncodeFloat64(3.5) }, func(d *Decoder) error {
		v, err := d.DecodeFloat64()
		if err == nil && v != 3.5 {
			t.Errorf("got %v, want 3.5", v)
		}
		return err
	})
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "hello world", "unicode: ☃"}
	for _, s := range cases {
		var buf bytes.Buffer
		if err := NewEncoder(&buf).EncodeString(s); err != nil {
			t.Fatalf("encode %q: %v", s, err)
		}
		got, err := NewDecoder(&buf).DecodeString()
		if err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		if got != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeBytes(data); err != nil {
		t.Fatal(err)
	}
	got, err := NewDecoder(&buf).DecodeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %v, want %v", got, data)
	}
}

func TestUint32SliceRoundTrip(t *testing.T) {
	vs := []uint32{1, 2, 3, 0xFFFFFFFF}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeUint32Slice(vs); err != nil {
		t.Fatal(err)
	}
	got, err := NewDecoder(&buf).DecodeUint32Slice()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(vs) {
		t.Fatalf("got %d elements, want %d", len(got), len(vs))
	}
	for i := range vs {
		if got[i] != vs[i] {
			t.Errorf("element %d: got %d, want %d", i, got[i], vs[i])
		}
	}
}

func TestStringSliceRoundTrip(t *testing.T) {
	vs := []string{"a", "bb", "", "ccc"}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeStringSlice(vs); err != nil {
		t.Fatal(err)
	}
	got, err := NewDecoder(&buf).DecodeStringSlice()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(vs) {
		t.Fatalf("got %d elements, want %d", len(got), len(vs))
	}
	for i := range vs {
		if got[i] != vs[i] {
			t.Errorf("element %d: got %q, want %q", i, got[i], vs[i])
		}
	}
}

func TestStringMapRoundTrip(t *testing.T) {
	m := map[string]string{"a": "1", "b": "2"}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeStringMap(m); err != nil {
		t.Fatal(err)
	}
	got, err := NewDecoder(&buf).DecodeStringMap()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(m) {
		t.Fatalf("got %d entries, want %d", len(got), len(m))
	}
	for k, v := range m {
		if got[k] != v {
			t.Errorf("key %q: got %q, want %q", k, got[k], v)
		}
	}
}

func TestFileReadResponseFastPath(t *testing.T) {
	resp := FileReadResponse{Status: 0, Data: []byte("payload bytes")}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeFileReadResponse(resp); err != nil {
		t.Fatal(err)
	}
	got, err := NewDecoder(&buf).DecodeFileReadResponse()
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != resp.Status || !bytes.Equal(got.Data, resp.Data) {
		t.Errorf("got %+v, want %+v", got, resp)
	}
}

func TestOptionalRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeOptionalString(nil); err != nil {
		t.Fatal(err)
	}
	v, err := NewDecoder(&buf).DecodeOptionalString()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("got %v, want nil", v)
	}

	s := "present"
	buf.Reset()
	if err := NewEncoder(&buf).EncodeOptionalString(&s); err != nil {
		t.Fatal(err)
	}
	v, err = NewDecoder(&buf).DecodeOptionalString()
	if err != nil {
		t.Fatal(err)
	}
	if v == nil || *v != s {
		t.Errorf("got %v, want %q", v, s)
	}
}

func TestDecodeShortReadFails(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2}) // too short for a uint32
	_, err := NewDecoder(&buf).DecodeUint32()
	if err == nil {
		t.Fatal("expected error on short read")
	}
	var codecErr *Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %T", err)
	}
	if codecErr.Type != "uint32" {
		t.Errorf("got type %q, want uint32", codecErr.Type)
	}
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("expected errors.Is(err, ErrShortRead)")
	}
}

func TestDecodeStringOversizeLengthFails(t *testing.T) {
	var buf bytes.Buffer
	// Claim a huge length but provide no data.
	if err := NewEncoder(&buf).EncodeUint32(1 << 30); err != nil {
		t.Fatal(err)
	}
	_, err := NewDecoder(&buf).DecodeString()
	if err == nil {
		t.Fatal("expected short-read error decoding truncated string")
	}
}
