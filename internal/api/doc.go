// Package api provides the operator HTTP API and live event feed for devicelinkd.
//
// It exposes the device registry, operator queries, the audit trail and
// the Prometheus collectors over HTTP, and streams relayed device traffic
// to WebSocket subscribers.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
