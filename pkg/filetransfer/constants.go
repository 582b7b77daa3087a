package filetransfer

// Fixed size constants named directly in spec §4.8. MaxUploadSize in
// pkg/config additionally bounds uploads when configured smaller than
// maxDownloadDataLength; it can never raise the ceiling above what §4.8
// fixes.
const (
	// downloadChunkSize is the GET streaming chunk size.
	downloadChunkSize = 1 << 20 // 1 MiB

	// uploadChunkSize is the PUT/PATCH request-body read chunk size.
	uploadChunkSize = 1 << 20 // 1 MiB

	// maxDownloadDataLength bounds a single GET/HEAD response body, and
	// doubles as the hard ceiling on PUT request bodies (PATCH bodies are
	// not checked against it).
	maxDownloadDataLength = 16 << 20 // 16 MiB
)
