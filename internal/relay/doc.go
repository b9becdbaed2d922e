// Package relay forwards accepted device traffic to the MQTT event bus
// and the InfluxDB telemetry store.
//
// Both sinks are optional. A relay failure is logged and never changes
// the acknowledgement the device receives.
//
// Topics (prefix "devicelink"):
//
//	devicelink/data/<device>           accepted DATA, JSON
//	devicelink/event/<device>/<event>  registered, logged_on, logged_off, deregistered
package relay
