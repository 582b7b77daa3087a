package filetransfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/bufpool"
	"github.com/parasvc/fabric/pkg/filetransfer/httpreq"
	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/metrics"
	"github.com/parasvc/fabric/pkg/provider"
)

// Handler wires the HTTP file-transfer pipelines described in §4.8 to a
// FileResolver/ParameterResolver pair, typically backed by a single
// provider.Registry.
type Handler struct {
	Files      FileResolver
	Parameters ParameterResolver

	// MaxUploadSize additionally bounds PUT request bodies when set below
	// maxDownloadDataLength; zero disables the additional cap. PATCH bodies
	// are not checked against either limit.
	MaxUploadSize uint64

	// Metrics records chunk throughput. A nil Metrics disables collection.
	Metrics *metrics.Collectors
}

func (h *Handler) uploadLimit() uint64 {
	if h.MaxUploadSize > 0 && h.MaxUploadSize < maxDownloadDataLength {
		return h.MaxUploadSize
	}
	return maxDownloadDataLength
}

func fileIDParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func withFileContext(r *http.Request, fileID string) {
	if lc := logger.FromContext(r.Context()); lc != nil {
		lc.FileID = fileID
	}
}

// HeadOrGet implements the shared HEAD/GET pipeline from §4.8.
func (h *Handler) HeadOrGet(w http.ResponseWriter, r *http.Request) {
	fileID := fileIDParam(r)
	withFileContext(r, fileID)

	var rng *byteRange
	if raw := r.Header.Get("Range"); raw != "" {
		parsed, err := parseRange(raw)
		if err != nil {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		rng = &parsed
	}

	file, ok := h.Files.ResolveFile(fileID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := file.GetFileInfo(r.Context())
	if err != nil {
		logger.Error("file_get_info failed", "file_id", fileID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if info.Status != backend.StatusOK {
		w.WriteHeader(statusToHTTP(info.Status))
		return
	}

	var res resolved
	if rng != nil {
		var satisfiable bool
		res, satisfiable = rng.resolve(info.FileSize)
		if !satisfiable {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	} else {
		res = resolved{Offset: 0, Length: info.FileSize}
	}

	if res.Length > maxDownloadDataLength {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	status := http.StatusOK
	if res.Ranged {
		status = http.StatusPartialContent
	}

	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Content-Length", strconv.FormatUint(res.Length, 10))
	if res.Ranged {
		header.Set("Content-Range", contentRangeHeader(res, info.FileSize))
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	streamDownload(r.Context(), w, file, res, fileID, h.Metrics)
}

// streamDownload writes res's bytes in downloadChunkSize pieces, issuing
// one file_read per chunk. A chunk failure after headers are already
// flushed is logged and the stream is cut short per §7; there is no way to
// retroactively change the status already sent.
func streamDownload(ctx context.Context, w http.ResponseWriter, file provider.File, res resolved, fileID string, m *metrics.Collectors) {
	remaining := res.Length
	offset := res.Offset
	for remaining > 0 {
		chunkLen := uint64(downloadChunkSize)
		if chunkLen > remaining {
			chunkLen = remaining
		}
		out, err := file.Read(ctx, offset, chunkLen)
		if err != nil {
			logger.Error("file_read failed mid-stream", "file_id", fileID, "offset", offset, "error", err)
			return
		}
		if !backend.Status(out.Status).OK() {
			logger.Error("file_read returned error status mid-stream", "file_id", fileID, "offset", offset, "status", out.Status)
			return
		}
		if _, err := w.Write(out.Data); err != nil {
			return
		}
		m.RecordChunkBytes("read", len(out.Data))
		if flusher, ok := w.(interface{ Flush() }); ok {
			flusher.Flush()
		}
		offset += uint64(len(out.Data))
		remaining -= uint64(len(out.Data))
		if len(out.Data) == 0 {
			return
		}
	}
}

// Put implements the PUT pipeline (full replace) from §4.8.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	fileID := fileIDParam(r)
	withFileContext(r, fileID)

	contentLength, ok := parseContentLength(w, r, h.uploadLimit())
	if !ok {
		return
	}
	if contentLength == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if httpreq.ContentTypeBase(r) != "application/octet-stream" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	if r.Header.Get("Content-Range") != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	file, ok := h.Files.ResolveFile(fileID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	createResp, err := file.Create(r.Context(), contentLength)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !createResp.Status.OK() {
		w.WriteHeader(statusToHTTP(createResp.Status))
		return
	}

	if err := writeChunks(r.Context(), file, r.Body, 0, contentLength, h.Metrics); err != nil {
		w.WriteHeader(httpStatusForWriteErr(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeChunks reads exactly length bytes from body in uploadChunkSize
// pieces, calling file_write for each at ascending offsets starting at
// baseOffset. The first failing chunk aborts; later chunks are never
// issued.
func writeChunks(ctx context.Context, file provider.File, body interface {
	Read(p []byte) (int, error)
}, baseOffset, length uint64, m *metrics.Collectors) error {
	remaining := length
	offset := baseOffset
	buf := bufpool.Get(uploadChunkSize)
	defer bufpool.Put(buf)
	for remaining > 0 {
		n := uint64(uploadChunkSize)
		if n > remaining {
			n = remaining
		}
		if _, err := readFull(body, buf[:n]); err != nil {
			return writeErr{status: backend.StatusLogicError, cause: err}
		}
		resp, err := file.Write(ctx, offset, buf[:n])
		if err != nil {
			return writeErr{status: backend.StatusLogicError, cause: err}
		}
		if !resp.Status.OK() {
			return writeErr{status: resp.Status}
		}
		m.RecordChunkBytes("write", int(n))
		offset += n
		remaining -= n
	}
	return nil
}

func readFull(r interface{ Read(p []byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

type writeErr struct {
	status backend.Status
	cause  error
}

func (e writeErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("filetransfer: write failed: %v", e.cause)
	}
	return fmt.Sprintf("filetransfer: write failed with status %v", e.status)
}

func httpStatusForWriteErr(err error) int {
	if we, ok := err.(writeErr); ok {
		if we.cause != nil {
			return http.StatusInternalServerError
		}
		return statusToHTTP(we.status)
	}
	return http.StatusInternalServerError
}

// parseContentLength implements §4.8 PUT step 1's Content-Length handling,
// writing the response itself on failure and returning ok=false.
func parseContentLength(w http.ResponseWriter, r *http.Request, limit uint64) (uint64, bool) {
	raw := r.Header.Get("Content-Length")
	if raw == "" {
		w.WriteHeader(http.StatusLengthRequired)
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return 0, false
	}
	if n > limit {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return 0, false
	}
	return n, true
}

// Patch implements the PATCH pipeline (partial update via
// multipart/byteranges) from §4.8.
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	fileID := fileIDParam(r)
	withFileContext(r, fileID)

	ct, boundary := httpreq.ContentTypeBase(r), httpreq.ContentTypeParam(r, "boundary")
	if ct != "multipart/byteranges" || boundary == "" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	file, ok := h.Files.ResolveFile(fileID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := file.GetFileInfo(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if info.Status != backend.StatusOK && info.Status != backend.StatusUnknownFileID {
		w.WriteHeader(statusToHTTP(info.Status))
		return
	}

	parts, err := parseByteranges(r.Body, boundary, fileSizeOrLargeBound(info))
	if err != nil {
		if errors.Is(err, errContentRangeTotalUnknown) {
			w.WriteHeader(http.StatusLengthRequired)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if info.FileSize == 0 && len(parts) > 0 {
		createResp, err := file.Create(r.Context(), parts[0].Total)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !createResp.Status.OK() {
			w.WriteHeader(statusToHTTP(createResp.Status))
			return
		}
	}

	for _, part := range parts {
		if err := writeDataChunks(r.Context(), file, part.Range.Offset, part.Data, h.Metrics); err != nil {
			w.WriteHeader(httpStatusForWriteErr(err))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeDataChunks is writeChunks' counterpart for a part body already held
// in memory (as multipart parsing produces), chunking the file_write calls
// at uploadChunkSize the same way a streamed PUT body does.
func writeDataChunks(ctx context.Context, file provider.File, offset uint64, data []byte, m *metrics.Collectors) error {
	for len(data) > 0 {
		n := uploadChunkSize
		if n > len(data) {
			n = len(data)
		}
		resp, err := file.Write(ctx, offset, data[:n])
		if err != nil {
			return writeErr{status: backend.StatusLogicError, cause: err}
		}
		if !resp.Status.OK() {
			return writeErr{status: resp.Status}
		}
		m.RecordChunkBytes("write", n)
		offset += uint64(n)
		data = data[n:]
	}
	return nil
}

// fileSizeOrLargeBound lets a first-write-on-empty-file PATCH validate
// parts against an effectively unbounded size, since the real size isn't
// known until the provider creates the file.
func fileSizeOrLargeBound(info provider.FileInfoResponse) uint64 {
	if info.FileSize == 0 {
		return ^uint64(0)
	}
	return info.FileSize
}

var queryValidate = validator.New()

// uploadContextQuery is the bound form of POST /files's required query
// parameter, validated before it is handed to the parameter resolver.
type uploadContextQuery struct {
	Context string `validate:"required,max=1024"`
}

// CreateUploadID implements POST /files?context=<param-instance-path>.
func (h *Handler) CreateUploadID(w http.ResponseWriter, r *http.Request) {
	q := uploadContextQuery{Context: r.URL.Query().Get("context")}
	if err := queryValidate.Struct(q); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	paramPath := q.Context

	paramProvider, ok := h.Parameters.ResolveParameterProviderForContext(paramPath)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, err := paramProvider.CreateParameterUploadID(r.Context(), paramPath)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if resp.Status != backend.StatusOK {
		w.WriteHeader(statusToHTTP(resp.Status))
		return
	}

	w.Header().Set("Location", currentPath(r)+"/"+resp.FileID)
	w.WriteHeader(http.StatusCreated)
}

func currentPath(r *http.Request) string {
	p := r.URL.Path
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
