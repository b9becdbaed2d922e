// Package influxdb records device traffic in InfluxDB.
//
// Every DATA message the server accepts becomes a point in the
// device_data measurement, and every lifecycle change (register, logon,
// logoff, deregister) becomes a point in device_events. Nothing in the
// protocol path depends on InfluxDB being reachable: writes are batched
// and non-blocking, and failures are reported through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series storage
//	}
//	defer client.Close()
//
//	client.WriteDeviceData("alice", "01", 11, "Sensor Data", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
