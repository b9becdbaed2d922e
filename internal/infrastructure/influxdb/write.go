package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceData   = "device_data"
	MeasurementDeviceEvents = "device_events"
)

// WriteDeviceData records an accepted DATA message.
//
// Parameters:
//   - device: Registered device name (tag)
//   - code: DATA code, e.g. "01" for sensor data (tag)
//   - length: Declared payload length
//   - payload: Message payload
//   - timestamp: Device-reported time of the message
func (c *Client) WriteDeviceData(device, code string, length int, payload string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceData,
		map[string]string{"device": device, "code": code},
		map[string]interface{}{"length": length, "payload": payload},
		timestamp,
	))
}

// WriteDeviceEvent records a registry state change such as "logged_on".
func (c *Client) WriteDeviceEvent(device, event string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceEvents,
		map[string]string{"device": device, "event": event},
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}
