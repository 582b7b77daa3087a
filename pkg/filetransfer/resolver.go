package filetransfer

import (
	"github.com/parasvc/fabric/pkg/provider"
)

// FileResolver looks up the live file provider backing a daemon-assigned
// file id. *provider.Registry satisfies this without pkg/provider needing
// to know anything about pkg/filetransfer.
type FileResolver interface {
	ResolveFile(fileID string) (provider.File, bool)
}

// ParameterResolver looks up the parameter provider that owns an upload
// context path, used to route POST /files?context=<path>.
type ParameterResolver interface {
	ResolveParameterProviderForContext(path string) (provider.Parameter, bool)
}
