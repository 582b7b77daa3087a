package filetransfer

import (
	"net/http"

	"github.com/parasvc/fabric/pkg/ipc/backend"
)

// statusToHTTP maps a core domain status to the HTTP status code the file
// engine replies with. Anything not explicitly listed (including a future
// status this build does not yet know about) maps to 500, matching the
// core's "anything else" catch-all.
func statusToHTTP(status backend.Status) int {
	switch status {
	case backend.StatusOK:
		return http.StatusOK
	case backend.StatusUnknownDeviceCollection,
		backend.StatusUnknownDevice,
		backend.StatusUnknownParameterPath,
		backend.StatusUnknownClassInstancePath,
		backend.StatusNotAFileID,
		backend.StatusLogicError,
		backend.StatusInvalidValue,
		backend.StatusFileSizeExceeded:
		return http.StatusBadRequest
	case backend.StatusUnknownFileID:
		return http.StatusNotFound
	case backend.StatusUnauthorized:
		return http.StatusForbidden
	case backend.StatusUploadIDMaxExceeded, backend.StatusFileNotAccessible:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
