package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository implements Repository in process memory.
// It enforces the same uniqueness rules as the registration table.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]Device)}
}

// GetByName retrieves a device by name.
func (m *MemoryRepository) GetByName(_ context.Context, name string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// GetByMAC retrieves the device holding a MAC.
func (m *MemoryRepository) GetByMAC(_ context.Context, mac string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		if d.MAC == mac {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

// List retrieves all devices ordered by name.
func (m *MemoryRepository) List(_ context.Context) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// Create inserts a new device.
func (m *MemoryRepository) Create(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[device.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, device.Name)
	}
	for _, d := range m.devices {
		if d.MAC == device.MAC {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, device.MAC)
		}
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	m.devices[device.Name] = *device
	return nil
}

// Update overwrites the mutable fields of a device.
func (m *MemoryRepository) Update(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.devices[device.Name]
	if !ok {
		return ErrNotFound
	}
	device.UpdatedAt = time.Now().UTC()
	existing.Passphrase = device.Passphrase
	existing.IP = device.IP
	existing.Port = device.Port
	existing.Active = device.Active
	existing.UpdatedAt = device.UpdatedAt
	m.devices[device.Name] = existing
	return nil
}

// Delete removes a device by name.
func (m *MemoryRepository) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[name]; !ok {
		return ErrNotFound
	}
	delete(m.devices, name)
	return nil
}
