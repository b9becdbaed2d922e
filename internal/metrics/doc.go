// Package metrics exposes devicelinkd's Prometheus collectors.
//
// Collectors live on a private registry so tests and multiple servers in
// one process never collide. All recording methods are safe on a nil
// *Metrics, which is how the server runs when metrics are disabled.
//
//	m := metrics.New()
//	router.Handle("/metrics", m.Handler())
package metrics
