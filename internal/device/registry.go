package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the device registry shared by all server sessions.
// It wraps a Repository with an in-memory cache keyed by name and by MAC.
//
// The cache is populated on startup via RefreshCache() and is authoritative
// afterwards: every mutation goes through the Registry, which updates the
// repository and the cache under one lock.
//
// Reads take the read lock. Each policy operation (Register, Login, Logoff,
// Deregister) holds the write lock across its lookup and its mutation, so two
// devices racing on the same name or MAC cannot both succeed.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	byName map[string]*Device
	byMAC  map[string]string // mac -> name
	logger Logger
}

// NewRegistry creates a new device registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		byName: make(map[string]*Device),
		byMAC:  make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[string]*Device, len(devices))
	r.byMAC = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i]
		r.byName[d.Name] = &d
		r.byMAC[d.MAC] = d.Name
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// LookupByName returns a copy of the named device.
// Returns ErrNotFound if the device does not exist.
func (r *Registry) LookupByName(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// LookupByMAC returns a copy of the device holding mac.
// Surrounding whitespace is trimmed; otherwise the MAC must match exactly.
func (r *Registry) LookupByMAC(mac string) (*Device, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byMAC[normalized]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byName[name]
	return &cp, nil
}

// Insert validates and stores a new device.
// Returns ErrDuplicateKey if the name or MAC is already present.
func (r *Registry) Insert(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[device.Name]; ok {
		return fmt.Errorf("%w: name %s", ErrDuplicateKey, device.Name)
	}
	if _, ok := r.byMAC[device.MAC]; ok {
		return fmt.Errorf("%w: mac %s", ErrDuplicateKey, device.MAC)
	}
	return r.insertLocked(ctx, device)
}

// UpdateEndpoint records the endpoint a device is reachable at.
// Returns ErrNotFound if the device does not exist.
func (r *Registry) UpdateEndpoint(ctx context.Context, name, ip string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutateLocked(ctx, name, func(d *Device) {
		d.IP = ip
		d.Port = port
	})
}

// SetActive sets the session flag of a device.
// Returns ErrNotFound if the device does not exist.
func (r *Registry) SetActive(ctx context.Context, name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutateLocked(ctx, name, func(d *Device) {
		d.Active = active
	})
}

// Remove deletes a device.
// Returns ErrNotFound if the device does not exist.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(ctx, name)
}

// ListActive returns a snapshot of all active devices ordered by name.
func (r *Registry) ListActive() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, d := range r.byName {
		if d.Active {
			devices = append(devices, *d)
		}
	}
	sortByName(devices)
	return devices
}

// List returns a snapshot of all devices ordered by name.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.byName))
	for _, d := range r.byName {
		devices = append(devices, *d)
	}
	sortByName(devices)
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Stats returns registry statistics for monitoring.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.byName)}
	for _, d := range r.byName {
		if d.Active {
			stats.Active++
		}
	}
	return stats
}

// Register applies the registration policy:
//
//   - name present with the same MAC: OutcomeAlreadyRegistered
//   - name present with another MAC: OutcomeRegisteredElsewhere
//   - MAC held by another name: OutcomeMACInUse
//   - otherwise the device is inserted inactive: OutcomeRegistered
//
// Invalid input returns an ErrInvalid* error and no outcome.
func (r *Registry) Register(ctx context.Context, name, passphrase, mac string) (Outcome, error) {
	device := &Device{Name: name, Passphrase: passphrase, MAC: mac}
	if err := ValidateDevice(device); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[device.Name]; ok {
		if existing.MAC == device.MAC {
			return OutcomeAlreadyRegistered, nil
		}
		return OutcomeRegisteredElsewhere, nil
	}
	if _, ok := r.byMAC[device.MAC]; ok {
		return OutcomeMACInUse, nil
	}

	if err := r.insertLocked(ctx, device); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Row written behind the cache's back.
			r.logger.Warn("registration conflicted in repository", "name", device.Name)
			return OutcomeMACInUse, nil
		}
		return 0, err
	}
	return OutcomeRegistered, nil
}

// Login applies the login policy. A correct passphrase records the endpoint
// and marks the device active, including when it is already active.
// An unknown name yields OutcomeNotRegistered and a wrong passphrase yields
// OutcomeAuthFailed.
func (r *Registry) Login(ctx context.Context, name, passphrase, ip string, port int) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byName[name]
	if !ok {
		return OutcomeNotRegistered, nil
	}
	if existing.Passphrase != passphrase {
		r.logger.Warn("login passphrase mismatch", "name", name)
		return OutcomeAuthFailed, nil
	}

	err := r.mutateLocked(ctx, name, func(d *Device) {
		d.IP = ip
		d.Port = port
		d.Active = true
	})
	if err != nil {
		return 0, err
	}
	return OutcomeLoggedOn, nil
}

// Logoff marks an active device inactive. An inactive device is left
// untouched and yields OutcomeNotLoggedOn.
func (r *Registry) Logoff(ctx context.Context, name string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byName[name]
	if !ok {
		return OutcomeNotRegistered, nil
	}
	if !existing.Active {
		return OutcomeNotLoggedOn, nil
	}

	if err := r.mutateLocked(ctx, name, func(d *Device) { d.Active = false }); err != nil {
		return 0, err
	}
	return OutcomeLoggedOff, nil
}

// Deregister removes a device whether or not it is active.
func (r *Registry) Deregister(ctx context.Context, name string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return OutcomeDidNotExist, nil
	}
	if err := r.removeLocked(ctx, name); err != nil {
		return 0, err
	}
	return OutcomeDeregistered, nil
}

// insertLocked persists and caches a new device. Caller holds r.mu.
func (r *Registry) insertLocked(ctx context.Context, device *Device) error {
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}
	cp := *device
	r.byName[cp.Name] = &cp
	r.byMAC[cp.MAC] = cp.Name

	r.logger.Info("device registered", "device", cp)
	return nil
}

// mutateLocked applies fn to a copy of the cached device, persists it and
// swaps it into the cache. Caller holds r.mu.
func (r *Registry) mutateLocked(ctx context.Context, name string, fn func(*Device)) error {
	cached, ok := r.byName[name]
	if !ok {
		return ErrNotFound
	}

	updated := *cached
	fn(&updated)
	if err := r.repo.Update(ctx, &updated); err != nil {
		return err
	}
	r.byName[name] = &updated

	r.logger.Debug("device updated", "device", updated)
	return nil
}

// removeLocked deletes a device from the repository and the cache. Caller holds r.mu.
func (r *Registry) removeLocked(ctx context.Context, name string) error {
	cached, ok := r.byName[name]
	if !ok {
		return ErrNotFound
	}
	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}
	delete(r.byMAC, cached.MAC)
	delete(r.byName, name)

	r.logger.Info("device removed", "name", name)
	return nil
}

func sortByName(devices []Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
}
