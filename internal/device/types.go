package device

import (
	"log/slog"
	"net"
	"strconv"
	"time"
)

// Device is one registered device.
//
// IP and Port hold the last endpoint supplied at login. They are empty
// until the device has logged on at least once.
type Device struct {
	Name       string    `json:"name"`
	Passphrase string    `json:"-"`
	MAC        string    `json:"mac"`
	IP         string    `json:"ip,omitempty"`
	Port       int       `json:"port,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasEndpoint reports whether the device has ever supplied an endpoint.
func (d *Device) HasEndpoint() bool {
	return d.IP != "" && d.Port > 0
}

// Endpoint returns the last known endpoint as host:port, or "" if none.
func (d *Device) Endpoint() string {
	if !d.HasEndpoint() {
		return ""
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// LogValue keeps the passphrase out of structured logs.
func (d Device) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", d.Name),
		slog.String("mac", d.MAC),
		slog.String("endpoint", d.Endpoint()),
		slog.Bool("active", d.Active),
	)
}

// Outcome is the result of a registry policy operation.
// The server maps each outcome onto an acknowledgement code.
type Outcome int

const (
	// OutcomeRegistered means a new record was inserted.
	OutcomeRegistered Outcome = iota + 1
	// OutcomeAlreadyRegistered means the name is registered with the same MAC.
	OutcomeAlreadyRegistered
	// OutcomeRegisteredElsewhere means the name is registered with a different MAC.
	OutcomeRegisteredElsewhere
	// OutcomeMACInUse means another name holds the MAC.
	OutcomeMACInUse
	// OutcomeLoggedOn means the device is now active at the supplied endpoint.
	OutcomeLoggedOn
	// OutcomeLoggedOff means the device went from active to inactive.
	OutcomeLoggedOff
	// OutcomeNotLoggedOn means logoff was requested for an inactive device. Nothing changed.
	OutcomeNotLoggedOn
	// OutcomeNotRegistered means the name is unknown.
	OutcomeNotRegistered
	// OutcomeAuthFailed means the passphrase did not match. Reported to devices as not registered.
	OutcomeAuthFailed
	// OutcomeDeregistered means the record was removed.
	OutcomeDeregistered
	// OutcomeDidNotExist means deregistration found no record.
	OutcomeDidNotExist
)

var outcomeNames = map[Outcome]string{
	OutcomeRegistered:          "registered",
	OutcomeAlreadyRegistered:   "already_registered",
	OutcomeRegisteredElsewhere: "registered_elsewhere",
	OutcomeMACInUse:            "mac_in_use",
	OutcomeLoggedOn:            "logged_on",
	OutcomeLoggedOff:           "logged_off",
	OutcomeNotLoggedOn:         "not_logged_on",
	OutcomeNotRegistered:       "not_registered",
	OutcomeAuthFailed:          "auth_failed",
	OutcomeDeregistered:        "deregistered",
	OutcomeDidNotExist:         "did_not_exist",
}

// String returns the snake_case name used in logs, audit entries and relay topics.
func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Mutated reports whether the outcome changed registry state.
func (o Outcome) Mutated() bool {
	switch o {
	case OutcomeRegistered, OutcomeLoggedOn, OutcomeLoggedOff, OutcomeDeregistered:
		return true
	default:
		return false
	}
}

// Stats holds registry counters for monitoring.
type Stats struct {
	Total  int
	Active int
}
