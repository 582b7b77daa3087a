package filetransfer

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
)

// errContentRangeTotalUnknown is returned by parseContentRange when a
// part's Content-Range total is "*". §4.8 PATCH step 3 requires 411 in
// this case, distinct from a generally malformed Content-Range's 400.
var errContentRangeTotalUnknown = errors.New("filetransfer: Content-Range total is \"*\"")

// byterangesPart is one part of a multipart/byteranges PATCH body: the
// range it targets, the declared total file size from its Content-Range,
// and the bytes to write there.
type byterangesPart struct {
	Range resolved
	Total uint64
	Data  []byte
}

// parseByteranges reads a multipart/byteranges body (RFC 7233 appendix A)
// bounded by fileSize, validating each part's Content-Type and
// Content-Range the way §4.8's PATCH pipeline requires: Content-Type must
// be application/octet-stream and Content-Range must be the single-range
// `bytes <first>-<last>/<size>` form, not a `*` or suffix form.
func parseByteranges(body io.Reader, boundary string, fileSize uint64) ([]byterangesPart, error) {
	if boundary == "" {
		return nil, fmt.Errorf("filetransfer: multipart/byteranges request missing boundary")
	}

	reader := multipart.NewReader(body, boundary)
	var parts []byterangesPart
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("filetransfer: reading multipart part: %w", err)
		}

		parsed, err := parseByterangesPart(part, fileSize)
		part.Close()
		if err != nil {
			return nil, err
		}
		parts = append(parts, parsed)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("filetransfer: multipart/byteranges request has no parts")
	}
	return parts, nil
}

func parseByterangesPart(part *multipart.Part, fileSize uint64) (byterangesPart, error) {
	if ct := partContentType(part.Header); ct != "application/octet-stream" {
		return byterangesPart{}, fmt.Errorf("filetransfer: part content-type %q, want application/octet-stream", ct)
	}

	cr := part.Header.Get("Content-Range")
	if cr == "" {
		return byterangesPart{}, fmt.Errorf("filetransfer: part missing Content-Range")
	}
	res, total, err := parseContentRange(cr, fileSize)
	if err != nil {
		return byterangesPart{}, err
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return byterangesPart{}, fmt.Errorf("filetransfer: reading part body: %w", err)
	}
	if uint64(len(data)) != res.Length {
		return byterangesPart{}, fmt.Errorf("filetransfer: part body length %d does not match Content-Range length %d", len(data), res.Length)
	}
	return byterangesPart{Range: res, Total: total, Data: data}, nil
}

func partContentType(h textproto.MIMEHeader) string {
	ct, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return h.Get("Content-Type")
	}
	return ct
}

// parseContentRange parses a response-form Content-Range header value
// (`bytes <first>-<last>/<size-or-*>`), as carried by each PATCH part, and
// returns the resolved range plus the declared total size. The asterisk
// total form returns errContentRangeTotalUnknown: §4.8 step 3 requires an
// explicit size so file_create can be issued with it.
func parseContentRange(header string, fileSize uint64) (resolved, uint64, error) {
	const prefix = "bytes "
	if !strings.HasPrefix(header, prefix) {
		return resolved{}, 0, fmt.Errorf("filetransfer: malformed Content-Range %q", header)
	}

	rangeAndTotal := strings.SplitN(header[len(prefix):], "/", 2)
	if len(rangeAndTotal) != 2 {
		return resolved{}, 0, fmt.Errorf("filetransfer: malformed Content-Range %q", header)
	}

	var first, last uint64
	n, err := fmt.Sscanf(rangeAndTotal[0], "%d-%d", &first, &last)
	if err != nil || n != 2 {
		return resolved{}, 0, fmt.Errorf("filetransfer: malformed Content-Range %q", header)
	}
	if last < first {
		return resolved{}, 0, fmt.Errorf("filetransfer: Content-Range %q has end before start", header)
	}
	if first > fileSize {
		return resolved{}, 0, fmt.Errorf("filetransfer: Content-Range %q starts beyond file size %d", header, fileSize)
	}

	if rangeAndTotal[1] == "*" {
		return resolved{}, 0, errContentRangeTotalUnknown
	}
	total, err := strconv.ParseUint(rangeAndTotal[1], 10, 64)
	if err != nil {
		return resolved{}, 0, fmt.Errorf("filetransfer: malformed Content-Range %q", header)
	}

	return resolved{Offset: first, Length: last - first + 1, Ranged: true}, total, nil
}
