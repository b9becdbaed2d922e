package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/database"
)

// DefaultDirectoryTTL is how long a resolved endpoint is reused.
const DefaultDirectoryTTL = 30 * time.Second

// Directory resolves a peer device to the host:port of its peer endpoint.
type Directory interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// forgetter is implemented by directories that cache endpoints.
type forgetter interface {
	Forget(name string)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, name string) (string, error)

// Lookup calls f.
func (f DirectoryFunc) Lookup(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// RegistryDirectory resolves peers from the registry store the server
// writes, caching endpoints for a TTL.
type RegistryDirectory struct {
	repo  device.Repository
	cache *ttlcache.Cache[string, string]
	db    *database.DB
}

// NewRegistryDirectory returns a directory reading repo.
func NewRegistryDirectory(repo device.Repository, ttl time.Duration) *RegistryDirectory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &RegistryDirectory{repo: repo, cache: cache}
}

// OpenRegistryDirectory opens the registry database at path read-only.
func OpenRegistryDirectory(ctx context.Context, path string, ttl time.Duration) (*RegistryDirectory, error) {
	db, err := database.Open(ctx, database.Config{Path: path, ReadOnly: true, BusyTimeout: 5})
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	d := NewRegistryDirectory(device.NewSQLiteRepository(db.DB), ttl)
	d.db = db
	return d, nil
}

// Lookup returns the endpoint of an active peer.
func (d *RegistryDirectory) Lookup(ctx context.Context, name string) (string, error) {
	if item := d.cache.Get(name); item != nil {
		return item.Value(), nil
	}

	peer, err := d.repo.GetByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", name, err)
	}
	if !peer.Active {
		return "", fmt.Errorf("looking up %s: %w", name, ErrPeerNotActive)
	}
	if !peer.HasEndpoint() {
		return "", fmt.Errorf("looking up %s: %w", name, ErrPeerUnreachable)
	}

	endpoint := peer.Endpoint()
	d.cache.Set(name, endpoint, ttlcache.DefaultTTL)
	return endpoint, nil
}

// Forget drops a cached endpoint. The client calls it when a send to the
// endpoint fails so the next lookup reads the registry again.
func (d *RegistryDirectory) Forget(name string) {
	d.cache.Delete(name)
}

// Close stops the cache and closes the database if the directory opened it.
func (d *RegistryDirectory) Close() error {
	d.cache.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
