// Package topics names the control-plane MQTT topics.
package topics

import "strings"

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "fleetsim"

// Command actions accepted under the command topic.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// Namespace builds topic strings under a fixed prefix.
type Namespace struct {
	prefix string
}

// New returns a Namespace rooted at prefix. Surrounding slashes are trimmed.
func New(prefix string) Namespace {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Namespace{prefix: prefix}
}

// Prefix returns the root of the namespace.
func (n Namespace) Prefix() string { return n.prefix }

// ServerStatus is the retained heartbeat topic.
func (n Namespace) ServerStatus() string { return n.prefix + "/status/server" }

// SimulationStatus is the retained status topic for one profile.
func (n Namespace) SimulationStatus(profileID string) string {
	return n.prefix + "/status/simulations/" + profileID
}

// SimulationIndex is the retained list of active profile ids.
func (n Namespace) SimulationIndex() string { return n.prefix + "/status/simulations/_index" }

// StatusWildcard matches every status topic.
func (n Namespace) StatusWildcard() string { return n.prefix + "/status/#" }

// SystemEvents carries non-retained system events.
func (n Namespace) SystemEvents() string { return n.prefix + "/events/system" }

// SimulationEvents carries non-retained simulation lifecycle events.
func (n Namespace) SimulationEvents() string { return n.prefix + "/events/simulation" }

// EventWildcard matches every event topic.
func (n Namespace) EventWildcard() string { return n.prefix + "/events/#" }

// SimulationLogs carries non-retained log lines for one profile.
func (n Namespace) SimulationLogs(profileID string) string {
	return n.prefix + "/logs/simulations/" + profileID
}

// Command is the inbound topic for a simulation action.
func (n Namespace) Command(action string) string {
	return n.prefix + "/cmd/simulation/" + action
}

// CommandWildcard is the subscription covering all commands.
func (n Namespace) CommandWildcard() string { return n.prefix + "/cmd/#" }

// CommandResponse is the reply topic for one correlation id.
func (n Namespace) CommandResponse(correlationID string) string {
	return n.prefix + "/cmd-response/" + correlationID
}

// ParseCommand extracts the action from a command topic. ok is false when the
// topic is not a simulation command under this namespace.
func (n Namespace) ParseCommand(topic string) (action string, ok bool) {
	rest, found := strings.CutPrefix(topic, n.prefix+"/cmd/simulation/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// ProfileFromStatus returns the profile id of a per-simulation status topic.
func (n Namespace) ProfileFromStatus(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, n.prefix+"/status/simulations/")
	if !found || rest == "" || rest == "_index" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
