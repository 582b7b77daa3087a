package filetransfer

import "testing"

func TestParseRangeValidForms(t *testing.T) {
	cases := []struct {
		header string
		want   byteRange
	}{
		{"bytes=100-500", byteRange{First: 100, Last: 500, HasLast: true}},
		{"bytes=100-", byteRange{First: 100}},
		{"bytes=-500", byteRange{Suffix: true, SuffixLength: 500}},
		{"bytes=0-0,200-300", byteRange{First: 0, Last: 0, HasLast: true}},
	}
	for _, tc := range cases {
		got, err := parseRange(tc.header)
		if err != nil {
			t.Fatalf("parseRange(%q): %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("parseRange(%q) = %+v, want %+v", tc.header, got, tc.want)
		}
	}
}

func TestParseRangeMalformedIs416(t *testing.T) {
	cases := []string{
		"bytes=a-z",
		"bytes= 1-2",
		"bytes=1-0",
		"bytes=",
		"bytes=-",
		"1-2",
	}
	for _, header := range cases {
		if _, err := parseRange(header); err == nil {
			t.Fatalf("parseRange(%q): expected error", header)
		}
	}
}

func TestResolveRangedGET(t *testing.T) {
	r, err := parseRange("bytes=100-500")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	res, ok := r.resolve(1024)
	if !ok {
		t.Fatalf("resolve: unexpectedly unsatisfiable")
	}
	if res.Offset != 100 || res.Length != 401 {
		t.Fatalf("res = %+v, want offset 100 length 401", res)
	}
	if got := contentRangeHeader(res, 1024); got != "bytes 100-500/1024" {
		t.Fatalf("contentRangeHeader = %q", got)
	}
}

func TestResolveSuffixRange(t *testing.T) {
	r, err := parseRange("bytes=-100")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	res, ok := r.resolve(1024)
	if !ok {
		t.Fatalf("resolve: unexpectedly unsatisfiable")
	}
	if res.Offset != 924 || res.Length != 100 {
		t.Fatalf("res = %+v, want offset 924 length 100", res)
	}
}

func TestResolveSuffixRangeLargerThanFile(t *testing.T) {
	r, err := parseRange("bytes=-5000")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	res, ok := r.resolve(1024)
	if !ok {
		t.Fatalf("resolve: unexpectedly unsatisfiable")
	}
	if res.Offset != 0 || res.Length != 1024 {
		t.Fatalf("res = %+v, want whole file", res)
	}
}

func TestResolveOffsetBeyondFileIsUnsatisfiable(t *testing.T) {
	r, err := parseRange("bytes=2000-3000")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if _, ok := r.resolve(1024); ok {
		t.Fatalf("resolve: expected unsatisfiable range")
	}
}
