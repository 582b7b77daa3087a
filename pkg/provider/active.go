package provider

import "sync"

// ActiveRegistry resolves files and parameter providers against whichever
// Registry currently backs the daemon's one live upstream IPC connection.
//
// The wire protocol and Registry are both scoped to a single connection
// (object ids, and therefore provider/file lookups, are only meaningful
// within the connection that minted them), but the HTTP file-transfer
// engine is connection-agnostic: it just needs "the currently registered
// providers". ActiveRegistry bridges the two by tracking the most recently
// connected Registry and delegating to it, which is the right model for a
// daemon with a single active upstream client — the common deployment
// shape for this fabric. A future multi-connection daemon would replace
// this with a lookup keyed by file id / parameter path across all live
// registries.
type ActiveRegistry struct {
	mu      sync.RWMutex
	current *Registry
}

// Set installs r as the active registry, replacing whatever was active
// before.
func (a *ActiveRegistry) Set(r *Registry) {
	a.mu.Lock()
	a.current = r
	a.mu.Unlock()
}

// ClearIfCurrent removes r as the active registry only if it is still the
// one installed — so a stale disconnect callback from a superseded
// connection can't clobber a newer one.
func (a *ActiveRegistry) ClearIfCurrent(r *Registry) {
	a.mu.Lock()
	if a.current == r {
		a.current = nil
	}
	a.mu.Unlock()
}

func (a *ActiveRegistry) get() (*Registry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.current != nil
}

// ResolveFile implements filetransfer.FileResolver over the active registry.
func (a *ActiveRegistry) ResolveFile(fileID string) (File, bool) {
	r, ok := a.get()
	if !ok {
		return nil, false
	}
	return r.ResolveFile(fileID)
}

// ResolveParameterProviderForContext implements
// filetransfer.ParameterResolver over the active registry.
func (a *ActiveRegistry) ResolveParameterProviderForContext(path string) (Parameter, bool) {
	r, ok := a.get()
	if !ok {
		return nil, false
	}
	return r.ResolveParameterProviderForContext(path)
}
