package provider

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/object"
	"github.com/parasvc/fabric/pkg/metrics"
)

// registeredParameterProvider is everything the daemon keeps about one live
// parameter provider: the proxy used to call into it, the dispatcher
// enforcing its call_mode, and the metadata pushed in the handshake's
// second step.
type registeredParameterProvider struct {
	ref        backend.ProviderRef
	proxy      *ParameterProxy
	dispatcher *Dispatcher
	metadata   backend.ProviderMetadata
}

// registeredFileProvider is the file-provider analogue, additionally
// carrying the daemon-assigned file id and the parameter-path context it
// was registered under.
type registeredFileProvider struct {
	ref        backend.ProviderRef
	fileID     string
	context    backend.FileProviderContext
	proxy      *FileProxy
	dispatcher *Dispatcher
	metadata   backend.ProviderMetadata
}

// Registry is the daemon-side implementation of backend.Registrar: it holds
// the live registry of devices, parameter providers, and file providers for
// one connection, and owns the ParameterProxy/FileProxy instances and their
// Dispatchers that subsequent GetParameterValues/Read/Write calls go
// through.
type Registry struct {
	mgr *manager.Manager

	concurrentWorkers   int
	serializedQueueSize int

	metrics *metrics.Collectors

	mu        sync.Mutex
	pending   map[object.ID]struct{} // ids created but not yet metadata-updated
	metadata  map[object.ID]backend.ProviderMetadata
	devices   map[backend.DeviceID]backend.DeviceRegistration
	params    map[object.ID]*registeredParameterProvider
	files     map[string]*registeredFileProvider
	fileByRef map[object.ID]string
}

// NewRegistry constructs a Registry bound to mgr. concurrentWorkers and
// serializedQueueSize configure every Dispatcher the registry creates for a
// freshly registered provider (see pkg/config's ProviderConfig).
func NewRegistry(mgr *manager.Manager, concurrentWorkers, serializedQueueSize int) *Registry {
	return &Registry{
		mgr:                 mgr,
		concurrentWorkers:   concurrentWorkers,
		serializedQueueSize: serializedQueueSize,
		pending:             make(map[object.ID]struct{}),
		metadata:            make(map[object.ID]backend.ProviderMetadata),
		devices:             make(map[backend.DeviceID]backend.DeviceRegistration),
		params:              make(map[object.ID]*registeredParameterProvider),
		files:               make(map[string]*registeredFileProvider),
		fileByRef:           make(map[object.ID]string),
	}
}

// CreateProviderProxies implements backend.Registrar step one: it allocates
// n fresh object ids for the client to build its own local proxies against.
func (r *Registry) CreateProviderProxies(n int) ([]object.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]object.ID, n)
	for i := range ids {
		id := r.mgr.Store().GenerateObjectID()
		r.pending[id] = struct{}{}
		ids[i] = id
	}
	return ids, nil
}

// UpdateProviderProxies implements backend.Registrar step two: it records
// the display metadata submitted for each freshly created id.
func (r *Registry) UpdateProviderProxies(ids []object.ID, metas []backend.ProviderMetadata) error {
	if len(ids) != len(metas) {
		return fmt.Errorf("provider registry: %d ids but %d metadata entries", len(ids), len(metas))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		delete(r.pending, id)
		r.metadata[id] = metas[i]
	}
	return nil
}

func (r *Registry) newDispatcher(mode backend.CallMode, providerID object.ID) *Dispatcher {
	d := NewDispatcher(mode, r.concurrentWorkers, r.serializedQueueSize)
	d.SetMetrics(r.metrics, providerID)
	return d
}

// SetMetrics wires Collectors into this registry. It applies to every
// dispatcher created afterward, and immediately to the registry's object
// store, labeled under connection. A nil collectors is a valid no-op wiring.
func (r *Registry) SetMetrics(m *metrics.Collectors, connection string) {
	r.metrics = m
	r.mgr.Store().SetMetrics(m, connection)
}

// RegisterParameterProviders implements backend.Registrar's final step for
// parameter providers: it installs a ParameterProxy at each ref's provider
// id, wraps it in a Dispatcher enforcing mode, and records it for lookup
// and later unregistration.
func (r *Registry) RegisterParameterProviders(refs []backend.ProviderRef, mode backend.CallMode) []backend.Response {
	responses := make([]backend.Response, len(refs))
	for i, ref := range refs {
		if err := r.registerParameterProvider(ref, mode); err != nil {
			responses[i] = backend.Response{Status: backend.StatusLogicError}
			continue
		}
		responses[i] = backend.Response{Status: backend.StatusOK}
	}
	return responses
}

func (r *Registry) registerParameterProvider(ref backend.ProviderRef, mode backend.CallMode) error {
	if err := backend.ValidateProviderRef(ref); err != nil {
		return fmt.Errorf("provider: invalid provider ref: %w", err)
	}

	r.mu.Lock()
	meta := r.metadata[ref.ProviderID]
	r.mu.Unlock()

	dispatcher := r.newDispatcher(mode, ref.ProviderID)
	selfID := r.mgr.Store().GenerateObjectID()
	proxy := NewParameterProxy(r.mgr, selfID, ref.ProviderID, dispatcher)
	if err := proxy.Register(); err != nil {
		dispatcher.Close()
		return err
	}

	r.mu.Lock()
	r.params[ref.ProviderID] = &registeredParameterProvider{ref: ref, proxy: proxy, dispatcher: dispatcher, metadata: meta}
	r.mu.Unlock()
	return nil
}

// UnregisterParameterProviders implements backend.Registrar.
func (r *Registry) UnregisterParameterProviders(refs []backend.ProviderRef) []backend.Response {
	responses := make([]backend.Response, len(refs))
	for i, ref := range refs {
		r.mu.Lock()
		entry, ok := r.params[ref.ProviderID]
		delete(r.params, ref.ProviderID)
		delete(r.metadata, ref.ProviderID)
		r.mu.Unlock()
		if ok {
			entry.dispatcher.Close()
			r.mgr.Store().Remove(entry.proxy.base.SenderID)
		}
		responses[i] = backend.Response{Status: backend.StatusOK}
	}
	return responses
}

// RegisterFileProviders implements backend.Registrar's final step for file
// providers: like parameter providers, but the daemon also mints a fresh
// file id the client must present on every subsequent file-transfer
// request.
func (r *Registry) RegisterFileProviders(refs []backend.ProviderRef, contexts []backend.FileProviderContext, mode backend.CallMode) []backend.FileIDResponse {
	responses := make([]backend.FileIDResponse, len(refs))
	for i, ref := range refs {
		fileID, err := r.registerFileProvider(ref, contexts[i], mode, newFileID())
		if err != nil {
			responses[i] = backend.FileIDResponse{Status: backend.StatusLogicError}
			continue
		}
		responses[i] = backend.FileIDResponse{Status: backend.StatusOK, FileID: fileID}
	}
	return responses
}

// ReregisterFileProviders implements backend.Registrar's replay path: the
// client supplies the file id it was assigned before a reconnection, and
// the daemon re-establishes the same id rather than minting a new one.
func (r *Registry) ReregisterFileProviders(refs []backend.ProviderRef, contexts []backend.FileProviderContext, existingIDs []string, mode backend.CallMode) []backend.FileIDResponse {
	responses := make([]backend.FileIDResponse, len(refs))
	for i, ref := range refs {
		fileID, err := r.registerFileProvider(ref, contexts[i], mode, existingIDs[i])
		if err != nil {
			responses[i] = backend.FileIDResponse{Status: backend.StatusLogicError}
			continue
		}
		responses[i] = backend.FileIDResponse{Status: backend.StatusOK, FileID: fileID}
	}
	return responses
}

func (r *Registry) registerFileProvider(ref backend.ProviderRef, ctx backend.FileProviderContext, mode backend.CallMode, fileID string) (string, error) {
	if err := backend.ValidateProviderRef(ref); err != nil {
		return "", fmt.Errorf("provider: invalid provider ref: %w", err)
	}
	if err := backend.ValidateFileProviderContext(ctx); err != nil {
		return "", fmt.Errorf("provider: invalid file provider context: %w", err)
	}

	r.mu.Lock()
	meta := r.metadata[ref.ProviderID]
	r.mu.Unlock()

	dispatcher := r.newDispatcher(mode, ref.ProviderID)
	selfID := r.mgr.Store().GenerateObjectID()
	proxy := NewFileProxy(r.mgr, selfID, ref.ProviderID, dispatcher)
	if err := proxy.Register(); err != nil {
		dispatcher.Close()
		return "", err
	}

	r.mu.Lock()
	r.files[fileID] = &registeredFileProvider{ref: ref, fileID: fileID, context: ctx, proxy: proxy, dispatcher: dispatcher, metadata: meta}
	r.fileByRef[ref.ProviderID] = fileID
	r.mu.Unlock()
	return fileID, nil
}

// UnregisterFileProviders implements backend.Registrar.
func (r *Registry) UnregisterFileProviders(refs []backend.ProviderRef) []backend.Response {
	responses := make([]backend.Response, len(refs))
	for i, ref := range refs {
		r.mu.Lock()
		fileID, ok := r.fileByRef[ref.ProviderID]
		var entry *registeredFileProvider
		if ok {
			entry = r.files[fileID]
			delete(r.files, fileID)
			delete(r.fileByRef, ref.ProviderID)
		}
		r.mu.Unlock()
		if entry != nil {
			entry.dispatcher.Close()
			r.mgr.Store().Remove(entry.proxy.base.SenderID)
		}
		responses[i] = backend.Response{Status: backend.StatusOK}
	}
	return responses
}

// RegisterDevices implements backend.Registrar.
func (r *Registry) RegisterDevices(devices []backend.DeviceRegistration) []backend.Response {
	responses := make([]backend.Response, len(devices))
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range devices {
		if err := backend.ValidateDeviceRegistration(d); err != nil {
			responses[i] = backend.Response{Status: backend.StatusInvalidValue}
			continue
		}
		r.devices[d.ID()] = d
		responses[i] = backend.Response{Status: backend.StatusOK}
	}
	return responses
}

// UnregisterDevices implements backend.Registrar.
func (r *Registry) UnregisterDevices(ids []backend.DeviceID) []backend.Response {
	responses := make([]backend.Response, len(ids))
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		delete(r.devices, id)
		responses[i] = backend.Response{Status: backend.StatusOK}
	}
	return responses
}

// UnregisterAllDevices implements backend.Registrar.
func (r *Registry) UnregisterAllDevices(collectionID uint32) backend.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.devices {
		if id.CollectionID == collectionID {
			delete(r.devices, id)
		}
	}
	return backend.Response{Status: backend.StatusOK}
}

// ParameterProviderByID returns the live ParameterProxy for providerID,
// for callers (e.g. the parameter HTTP surface) that already know which
// provider a path resolves to.
func (r *Registry) ParameterProviderByID(providerID object.ID) (*ParameterProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.params[providerID]
	if !ok {
		return nil, false
	}
	return entry.proxy, true
}

// FileProviderByFileID returns the live FileProxy registered for fileID and
// whether one was found, used by pkg/filetransfer to route a range request.
func (r *Registry) FileProviderByFileID(fileID string) (*FileProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.files[fileID]
	if !ok {
		return nil, false
	}
	return entry.proxy, true
}

// ResolveFile satisfies pkg/filetransfer's FileResolver contract by
// returning fileID's FileProxy as the bare File interface.
func (r *Registry) ResolveFile(fileID string) (File, bool) {
	return r.FileProviderByFileID(fileID)
}

// ResolveParameterProviderForContext finds the registered parameter
// provider whose ProvidedSelectors lists path exactly, used to route
// POST /files?context=<path> to the provider that owns it.
func (r *Registry) ResolveParameterProviderForContext(path string) (Parameter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.params {
		for _, sel := range entry.metadata.ProvidedSelectors {
			if sel == path {
				return entry.proxy, true
			}
		}
	}
	return nil, false
}

// newFileID mints a fresh daemon-assigned file id. UUIDs keep ids
// collision-free across reconnecting clients without a central counter.
func newFileID() string {
	return uuid.NewString()
}
