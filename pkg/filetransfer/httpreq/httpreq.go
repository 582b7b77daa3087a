// Package httpreq provides small, non-suspending helpers over an HTTP
// request: method parsing against the RFC 7231/5789 method surface and
// case-insensitive header lookups. It exists to keep that parsing logic
// testable independent of net/http's ServeMux wiring.
package httpreq

import (
	"fmt"
	"net/http"
	"strings"
)

// Method is one of the case-sensitive uppercase HTTP methods this fabric
// recognizes on the wire.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodDelete  Method = http.MethodDelete
	MethodConnect Method = http.MethodConnect
	MethodOptions Method = http.MethodOptions
	MethodTrace   Method = http.MethodTrace
	MethodPatch   Method = http.MethodPatch
)

// knownMethods enumerates the full RFC 7231 §4.3 / RFC 5789 surface; a
// method outside this set is rejected rather than silently accepted.
var knownMethods = map[string]Method{
	string(MethodGet):     MethodGet,
	string(MethodHead):    MethodHead,
	string(MethodPost):    MethodPost,
	string(MethodPut):     MethodPut,
	string(MethodDelete):  MethodDelete,
	string(MethodConnect): MethodConnect,
	string(MethodOptions): MethodOptions,
	string(MethodTrace):   MethodTrace,
	string(MethodPatch):   MethodPatch,
}

// ParseMethod resolves name against the known method surface. Matching is
// case-sensitive: the wire form is always uppercase, and a lowercase or
// mixed-case method name is treated as unknown rather than normalized.
func ParseMethod(name string) (Method, error) {
	if m, ok := knownMethods[name]; ok {
		return m, nil
	}
	return "", fmt.Errorf("httpreq: unknown HTTP method %q", name)
}

// Header looks up r's header value for name, folding case the way HTTP
// header names are defined to (net/http's CanonicalHeaderKey), so callers
// never need to remember the canonical spelling of e.g. "Content-Range".
func Header(r *http.Request, name string) string {
	return r.Header.Get(name)
}

// HasHeader reports whether r carries a header named name at all,
// distinguishing an absent header from one present with an empty value.
func HasHeader(r *http.Request, name string) bool {
	_, ok := r.Header[http.CanonicalHeaderKey(name)]
	return ok
}

// ContentTypeBase returns r's Content-Type with any parameters (e.g.
// ";boundary=..." or ";charset=...") stripped, case-folded for comparison.
func ContentTypeBase(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// ContentTypeParam extracts the value of param (e.g. "boundary") from r's
// Content-Type header, or "" if absent.
func ContentTypeParam(r *http.Request, param string) string {
	ct := r.Header.Get("Content-Type")
	parts := strings.Split(ct, ";")
	prefix := strings.ToLower(param) + "="
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), prefix) {
			return strings.Trim(p[len(prefix):], `"`)
		}
	}
	return ""
}
