// Package mqtt provides the MQTT client used to relay device traffic.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing device data and lifecycle events
//   - Subscriptions to remote query commands
//   - Last Will and Testament (LWT) so subscribers see the server go offline
//
// # Topics
//
// All topics hang off the configured prefix (default "devicelink"):
//
//	<prefix>/data/<device>            accepted DATA payloads
//	<prefix>/event/<device>/<event>   registered, logged_on, logged_off, deregistered
//	<prefix>/command/query/<device>   publish here to query an active device
//	<prefix>/system/status            retained online/offline status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.DeviceData("alice"), payload)
//
// Integration tests that need a broker at 127.0.0.1:1883 carry the
// "integration" build tag.
package mqtt
