package provider

import (
	"context"

	"github.com/parasvc/fabric/internal/codec"
	"github.com/parasvc/fabric/pkg/ipc/backend"
)

// Parameter is the parameter-provider contract: operations the daemon
// issues into an out-of-process client's registered parameter provider.
// Every method suspends until the matching IPC reply arrives; ctx bounds
// that wait.
type Parameter interface {
	GetParameterValues(ctx context.Context, ids []string) ([]ValueResponse, error)
	SetParameterValues(ctx context.Context, reqs []SetRequest) ([]SetResponse, error)
	SetParameterValuesConnectionAware(ctx context.Context, reqs []SetRequest, deferResponse bool) ([]SetResponse, error)
	InvokeMethod(ctx context.Context, methodID string, args []byte) (MethodResponse, error)
	CreateParameterUploadID(ctx context.Context, paramContext string) (backend.FileIDResponse, error)
	RemoveParameterUploadID(ctx context.Context, fileID, paramContext string) (backend.Response, error)
}

// File is the file-provider contract consumed by pkg/filetransfer: it
// backs file_get_info, file_read, file_write, and file_create for one
// registered file id.
type File interface {
	Read(ctx context.Context, offset, length uint64) (codec.FileReadResponse, error)
	Write(ctx context.Context, offset uint64, data []byte) (backend.Response, error)
	GetFileInfo(ctx context.Context) (FileInfoResponse, error)
	Create(ctx context.Context, capacity uint64) (backend.Response, error)
}
