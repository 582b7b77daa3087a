package filetransfer

import (
	"fmt"
	"strconv"
	"strings"
)

// byteRange is a parsed `Range: bytes=...` header: exactly one of the two
// accepted forms. Suffix is true for the `bytes=-<n>` form, in which case
// SuffixLength holds n and First/Last are unused.
type byteRange struct {
	Suffix       bool
	SuffixLength uint64
	First        uint64
	Last         uint64
	HasLast      bool
}

// parseRange parses an RFC 7233 Range header value. Only `bytes=<first>-<last>`
// and the suffix form `bytes=-<n>` are accepted; a comma-separated list of
// ranges has every range after the first ignored. Any other malformation
// is reported so the caller can respond 416.
func parseRange(header string) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, fmt.Errorf("filetransfer: range header missing %q prefix", prefix)
	}
	spec := header[len(prefix):]
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return byteRange{}, fmt.Errorf("filetransfer: range spec %q missing '-'", spec)
	}

	firstStr, lastStr := spec[:dash], spec[dash+1:]
	if firstStr == "" {
		if lastStr == "" {
			return byteRange{}, fmt.Errorf("filetransfer: empty suffix range")
		}
		n, err := strconv.ParseUint(lastStr, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("filetransfer: malformed suffix length %q: %w", lastStr, err)
		}
		return byteRange{Suffix: true, SuffixLength: n}, nil
	}

	first, err := strconv.ParseUint(firstStr, 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("filetransfer: malformed range start %q: %w", firstStr, err)
	}
	if lastStr == "" {
		return byteRange{First: first}, nil
	}
	last, err := strconv.ParseUint(lastStr, 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("filetransfer: malformed range end %q: %w", lastStr, err)
	}
	if last < first {
		return byteRange{}, fmt.Errorf("filetransfer: range end %d before start %d", last, first)
	}
	return byteRange{First: first, Last: last, HasLast: true}, nil
}

// resolved is the (offset, length) a byteRange reduces to once the file's
// actual size is known.
type resolved struct {
	Offset uint64
	Length uint64
	Ranged bool
}

// resolve computes the effective offset/length for r against fileSize,
// following §4.8's clamping rules. ok is false when the range is
// unsatisfiable (offset beyond the end of the file) and the caller must
// reply 416.
func (r byteRange) resolve(fileSize uint64) (resolved, bool) {
	if r.Suffix {
		length := r.SuffixLength
		if length > fileSize {
			length = fileSize
		}
		offset := fileSize - length
		return resolved{Offset: offset, Length: length, Ranged: true}, true
	}

	if r.First > fileSize {
		return resolved{}, false
	}
	length := fileSize - r.First
	if r.HasLast {
		span := r.Last - r.First + 1
		if span < length {
			length = span
		}
	}
	return resolved{Offset: r.First, Length: length, Ranged: true}, true
}

// contentRangeHeader formats the Content-Range response header value for a
// resolved range against fileSize.
func contentRangeHeader(res resolved, fileSize uint64) string {
	last := res.Offset + res.Length
	if res.Length > 0 {
		last--
	}
	return fmt.Sprintf("bytes %d-%d/%d", res.Offset, last, fileSize)
}
