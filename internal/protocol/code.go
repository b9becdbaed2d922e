package protocol

import (
	"fmt"
	"strings"
)

// Code is a two-digit acknowledgement code.
type Code string

// Acknowledgement codes.
const (
	CodeRegistered          Code = "00"
	CodeAlreadyRegistered   Code = "01"
	CodeEndpointChanged     Code = "02"
	CodeIPInUse             Code = "12"
	CodeMACInUse            Code = "13"
	CodeDeregistered        Code = "20"
	CodeDidNotExist         Code = "21"
	CodeRegisteredElsewhere Code = "30"
	CodeNotRegistered       Code = "31"
	CodeStatusReceived      Code = "40"
	CodeDataReceived        Code = "50"
	CodeDataNotRegistered   Code = "51"
	CodeLoggedOn            Code = "70"
	CodeLoggedOff           Code = "80"
)

// Request codes carried in DATA, QUERY and STATUS messages.
const (
	// QuerySensor asks the target for a sensor reading.
	QuerySensor = "01"
	// QueryLoopback asks the target to answer over the peer channel.
	QueryLoopback = "99"
	// DataSensor marks a DATA message carrying a sensor reading.
	DataSensor = "01"
	// StatusCheck marks a STATUS liveness message.
	StatusCheck = "01"
)

// codeFormats maps each code to its human-readable line. %s is the device name.
var codeFormats = map[Code]string{
	CodeRegistered:          "Device %s registered",
	CodeAlreadyRegistered:   "Device %s previously registered",
	CodeEndpointChanged:     "Device %s endpoint changed",
	CodeIPInUse:             "IP address already in use",
	CodeMACInUse:            "MAC address already in use",
	CodeDeregistered:        "Device %s deregistered",
	CodeDidNotExist:         "Device did not exist",
	CodeRegisteredElsewhere: "Device %s is already registered with another MAC",
	CodeNotRegistered:       "Device is not registered",
	CodeStatusReceived:      "Status received",
	CodeDataReceived:        "Data received",
	CodeDataNotRegistered:   "Device is not registered",
	CodeLoggedOn:            "Device %s is logged on",
	CodeLoggedOff:           "Device %s is logged off",
}

// Known reports whether c is in the code table.
func (c Code) Known() bool {
	_, ok := codeFormats[c]
	return ok
}

// Text returns the one-line description of c for device name.
func (c Code) Text(name string) string {
	format, ok := codeFormats[c]
	if !ok {
		return fmt.Sprintf("Unknown acknowledgement %q", string(c))
	}
	if !strings.Contains(format, "%s") {
		return format
	}
	return fmt.Sprintf(format, name)
}
