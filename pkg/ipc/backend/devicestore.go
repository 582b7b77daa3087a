package backend

import "sync"

// DeviceStore caches every device registration a BackendProxy has
// successfully submitted, so that ReregisterProviders can replay them after
// a reconnection without the original caller's involvement.
type DeviceStore struct {
	mu      sync.Mutex
	devices map[DeviceID]DeviceRegistration
}

// NewDeviceStore returns an empty DeviceStore.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[DeviceID]DeviceRegistration)}
}

// Record caches a successfully registered device.
func (s *DeviceStore) Record(d DeviceRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID()] = d
}

// Forget removes a device, e.g. after an explicit unregister.
func (s *DeviceStore) Forget(id DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
}

// ForgetCollection removes every device belonging to collectionID, mirroring
// unregister_all_devices.
func (s *DeviceStore) ForgetCollection(collectionID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.devices {
		if id.CollectionID == collectionID {
			delete(s.devices, id)
		}
	}
}

// All returns every cached device registration, in no particular order.
func (s *DeviceStore) All() []DeviceRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceRegistration, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}
