package backend

import "sync"

// parameterProviderEntry is one cached parameter-provider registration.
type parameterProviderEntry struct {
	ref      ProviderRef
	callMode CallMode
}

// fileProviderEntry is one cached file-provider registration, including the
// file id assigned by the daemon on first registration so a reconnect can
// reregister under the same id.
type fileProviderEntry struct {
	ref      ProviderRef
	callMode CallMode
	context  FileProviderContext
	fileID   string
}

// ProviderCache caches every successful parameter- and file-provider
// registration on the proxy side, feeding ReregisterProviders after a
// reconnection.
type ProviderCache struct {
	mu         sync.Mutex
	parameters map[uint32]parameterProviderEntry
	files      map[uint32]fileProviderEntry
}

// NewProviderCache returns an empty ProviderCache.
func NewProviderCache() *ProviderCache {
	return &ProviderCache{
		parameters: make(map[uint32]parameterProviderEntry),
		files:      make(map[uint32]fileProviderEntry),
	}
}

// RecordParameterProvider caches a successful parameter-provider
// registration.
func (c *ProviderCache) RecordParameterProvider(ref ProviderRef, mode CallMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parameters[ref.ProviderID] = parameterProviderEntry{ref: ref, callMode: mode}
}

// ForgetParameterProvider removes a cached parameter-provider registration.
func (c *ProviderCache) ForgetParameterProvider(providerID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.parameters, providerID)
}

// RecordFileProvider caches a successful file-provider registration,
// including the daemon-assigned file id.
func (c *ProviderCache) RecordFileProvider(ref ProviderRef, mode CallMode, ctx FileProviderContext, fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[ref.ProviderID] = fileProviderEntry{ref: ref, callMode: mode, context: ctx, fileID: fileID}
}

// ForgetFileProvider removes a cached file-provider registration.
func (c *ProviderCache) ForgetFileProvider(providerID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, providerID)
}

// AllParameterProviders returns every cached parameter-provider
// registration.
func (c *ProviderCache) AllParameterProviders() []parameterProviderEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]parameterProviderEntry, 0, len(c.parameters))
	for _, e := range c.parameters {
		out = append(out, e)
	}
	return out
}

// AllFileProviders returns every cached file-provider registration.
func (c *ProviderCache) AllFileProviders() []fileProviderEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fileProviderEntry, 0, len(c.files))
	for _, e := range c.files {
		out = append(out, e)
	}
	return out
}
