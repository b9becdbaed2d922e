package relay

import (
	"time"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicelink/internal/protocol"
)

// Publisher is the MQTT side of the relay. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// Writer is the time-series side of the relay. *influxdb.Client satisfies it.
type Writer interface {
	WriteDeviceData(device, code string, length int, payload string, timestamp time.Time)
	WriteDeviceEvent(device, event string)
}

// Broadcaster is the live feed side of the relay. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Live feed channels.
const (
	ChannelDeviceData  = "device.data"
	ChannelDeviceEvent = "device.event"
)

// Logger defines the logging interface used by the Relay.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// DataMessage is the JSON body published for accepted DATA.
type DataMessage struct {
	Device     string    `json:"device"`
	Code       string    `json:"code"`
	Timestamp  int64     `json:"timestamp"`
	Length     int       `json:"length"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventMessage is the JSON body published for a lifecycle event.
type EventMessage struct {
	Device    string    `json:"device"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Relay fans accepted traffic out to the configured sinks.
// A nil *Relay, or one with no sinks, does nothing.
type Relay struct {
	publisher   Publisher
	writer      Writer
	broadcaster Broadcaster
	logger      Logger
	now         func() time.Time
}

// New returns a relay. Either sink may be nil.
func New(publisher Publisher, writer Writer) *Relay {
	return &Relay{
		publisher: publisher,
		writer:    writer,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.logger = logger
}

// SetBroadcaster adds a live feed sink.
func (r *Relay) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// Data relays DATA accepted from device.
func (r *Relay) Data(deviceName string, msg protocol.Data) {
	if r == nil {
		return
	}

	if r.writer != nil {
		r.writer.WriteDeviceData(deviceName, msg.Code, msg.Length, msg.Payload, time.Unix(msg.Timestamp, 0))
	}

	body := DataMessage{
		Device:     deviceName,
		Code:       msg.Code,
		Timestamp:  msg.Timestamp,
		Length:     msg.Length,
		Payload:    msg.Payload,
		ReceivedAt: r.now().UTC(),
	}
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelDeviceData, body)
	}

	if r.publisher != nil {
		topic := r.publisher.Topics().DeviceData(deviceName)
		err := r.publisher.PublishJSON(topic, body)
		if err != nil {
			r.logger.Warn("relaying device data failed", "device", deviceName, "topic", topic, "error", err)
			return
		}
		r.logger.Debug("device data relayed", "device", deviceName, "topic", topic)
	}
}

// Event relays a registry outcome. Outcomes that changed nothing are skipped.
func (r *Relay) Event(deviceName string, outcome device.Outcome) {
	if r == nil || !outcome.Mutated() {
		return
	}
	event := outcome.String()

	if r.writer != nil {
		r.writer.WriteDeviceEvent(deviceName, event)
	}

	body := EventMessage{
		Device:    deviceName,
		Event:     event,
		Timestamp: r.now().UTC(),
	}
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelDeviceEvent, body)
	}

	if r.publisher != nil {
		topic := r.publisher.Topics().DeviceEvent(deviceName, event)
		err := r.publisher.PublishJSON(topic, body)
		if err != nil {
			r.logger.Warn("relaying device event failed", "device", deviceName, "event", event, "error", err)
		}
	}
}
