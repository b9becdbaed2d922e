// Package device provides the Device Registry.
//
// The registry is the only state shared between server sessions. It holds
// one record per registered device (name, passphrase, MAC, last endpoint,
// active flag) and enforces the uniqueness of names and MACs.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌──────────────────┐    ┌──────────────────┐                 │
//	│  │     Registry     │    │    Repository    │                 │
//	│  │   (registry.go)  │───▶│  (repository.go) │                 │
//	│  │                  │    │                  │                 │
//	│  │ • Policy ops     │    │ • SQLite (sqlx)  │                 │
//	│  │ • Name/MAC cache │    │ • Memory         │                 │
//	│  │ • One RWMutex    │    │                  │                 │
//	│  └──────────────────┘    └──────────────────┘                 │
//	└──────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	outcome, err := registry.Register(ctx, "alice", "pw1", "AA:BB:CC:DD:EE:01")
//	// outcome == device.OutcomeRegistered
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Policy operations hold the write
// lock across lookup and mutation; reads share the read lock.
package device
