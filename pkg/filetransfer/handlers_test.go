package filetransfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/parasvc/fabric/pkg/provider"
	"github.com/parasvc/fabric/pkg/provider/fakeprovider"
)

type fakeResolver struct {
	files  map[string]provider.File
	params map[string]provider.Parameter
}

func (f *fakeResolver) ResolveFile(fileID string) (provider.File, bool) {
	file, ok := f.files[fileID]
	return file, ok
}

func (f *fakeResolver) ResolveParameterProviderForContext(path string) (provider.Parameter, bool) {
	p, ok := f.params[path]
	return p, ok
}

func newTestServer(files map[string]provider.File, params map[string]provider.Parameter) *httptest.Server {
	resolver := &fakeResolver{files: files, params: params}
	h := &Handler{Files: resolver, Parameters: resolver}
	return httptest.NewServer(NewRouter(h, []string{"*"}))
}

func TestPutThenGetRoundTrip(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	body := bytes.Repeat([]byte("A"), 4096)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/files/f1", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/files/f1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()
	got, err := io.ReadAll(getResp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("GET body mismatch: got %d bytes, want %d", len(got), len(body))
	}
}

func TestPutRejectsContentRange(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/files/f1", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", "bytes 0-0/1")
	req.ContentLength = 1

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPutMissingContentLength(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/files/f1", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = -1
	req.Header.Del("Content-Length")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLengthRequired && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 411 or 400", resp.StatusCode)
	}
}

func TestPutZeroContentLengthIs400(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/files/f1", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = 0

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	if _, err := file.GetFileInfo(context.Background()); err != nil {
		t.Fatalf("get file info: %v", err)
	}
}

func TestPatchContentRangeAsteriskTotalIs411(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.SetBoundary("TESTBOUNDARY")
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Range", "bytes 0-2/*")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("abc"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/files/f1", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", "multipart/byteranges; boundary=TESTBOUNDARY")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLengthRequired {
		t.Fatalf("status = %d, want 411", resp.StatusCode)
	}
}

func TestRangedGETReturns206(t *testing.T) {
	data := bytes.Repeat([]byte("B"), 1024)
	file := fakeprovider.NewFile(data)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/files/f1", nil)
	req.Header.Set("Range", "bytes=100-500")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 100-500/1024" {
		t.Fatalf("Content-Range = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data[100:501]) {
		t.Fatalf("body mismatch: len %d, want %d", len(body), 401)
	}
}

func TestMalformedRangeIs416(t *testing.T) {
	file := fakeprovider.NewFile(bytes.Repeat([]byte("C"), 100))
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/files/f1", nil)
	req.Header.Set("Range", "bytes=a-z")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", resp.StatusCode)
	}
}

func TestGetUnknownFileIs404(t *testing.T) {
	srv := newTestServer(map[string]provider.File{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPatchMultipartByterangesWritesParts(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.SetBoundary("TESTBOUNDARY")

	writePart := func(offset, last, total uint64, data []byte) {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, last, total))
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(data)
	}
	writePart(0, 2, 10, []byte("abc"))
	writePart(5, 7, 10, []byte("xyz"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/files/f1", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", "multipart/byteranges; boundary=TESTBOUNDARY")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	info, err := file.GetFileInfo(context.Background())
	if err != nil {
		t.Fatalf("get file info: %v", err)
	}
	if info.FileSize != 10 {
		t.Fatalf("file size = %d, want 10", info.FileSize)
	}

	read, err := file.Read(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(read.Data[0:3]) != "abc" || string(read.Data[5:8]) != "xyz" {
		t.Fatalf("unexpected file contents: %q", read.Data)
	}
}

func TestCreateUploadID(t *testing.T) {
	param := fakeprovider.NewParameter(nil)
	srv := newTestServer(nil, map[string]provider.Parameter{"/Device/1/Firmware": param})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/files?context=%2FDevice%2F1%2FFirmware", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatalf("missing Location header")
	}
}

func TestCreateUploadIDMissingContextIs400(t *testing.T) {
	srv := newTestServer(nil, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/files", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOptionsPreflightOnFilesItem(t *testing.T) {
	file := fakeprovider.NewFile(nil)
	srv := newTestServer(map[string]provider.File{"f1": file}, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/files/f1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != filesItemCORS.allowedMethods {
		t.Fatalf("Allow-Methods = %q", got)
	}
}
