package mqtt

import (
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "devicelink"

// Device names are free text, so level separators and wildcards are
// percent-escaped before a name becomes a topic level.
var (
	levelEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")
	levelUnescaper = strings.NewReplacer("%25", "%", "%2F", "/", "%2B", "+", "%23", "#")
)

// EscapeLevel makes name safe to use as a single topic level.
func EscapeLevel(name string) string {
	return levelEscaper.Replace(name)
}

// Topics builds devicelink MQTT topics under a prefix.
//
//	topics := mqtt.NewTopics("devicelink")
//	topics.DeviceEvent("alice", "logged_on")
//	// Returns: "devicelink/event/alice/logged_on"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// DeviceData returns the topic accepted DATA from device is published on.
func (t Topics) DeviceData(device string) string {
	return t.prefix + "/data/" + EscapeLevel(device)
}

// DeviceEvent returns the topic for a lifecycle event of device.
func (t Topics) DeviceEvent(device, event string) string {
	return t.prefix + "/event/" + EscapeLevel(device) + "/" + EscapeLevel(event)
}

// QueryCommand returns the topic that requests a query of device.
func (t Topics) QueryCommand(device string) string {
	return t.prefix + "/command/query/" + EscapeLevel(device)
}

// SystemStatus returns the retained server status topic.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// AllDeviceData matches the data topics of every device.
func (t Topics) AllDeviceData() string {
	return t.prefix + "/data/+"
}

// AllDeviceEvents matches every lifecycle event.
func (t Topics) AllDeviceEvents() string {
	return t.prefix + "/event/#"
}

// AllQueryCommands matches the query command of every device.
func (t Topics) AllQueryCommands() string {
	return t.prefix + "/command/query/+"
}

// DeviceFromQueryCommand extracts the device name from a query command topic,
// reversing the level escaping applied by QueryCommand.
func (t Topics) DeviceFromQueryCommand(topic string) (string, bool) {
	device, ok := strings.CutPrefix(topic, t.prefix+"/command/query/")
	if !ok || device == "" || strings.Contains(device, "/") {
		return "", false
	}
	return levelUnescaper.Replace(device), true
}
