package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Revend topic hierarchy.
//
// All topics live under a single root: revend/{category}/...
const (
	// TopicPrefixRoot is the base for all Revend topics.
	TopicPrefixRoot = "revend"

	// TopicPrefixMachines is the base for per-machine topics.
	TopicPrefixMachines = "revend/machines"

	// TopicPrefixSystem is the base for backend system topics.
	TopicPrefixSystem = "revend/system"
)

// Topics provides builders for Revend MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.MachineStatus("machine-7")
//	// Returns: "revend/machines/machine-7/status"
type Topics struct{}

// MachineStatus returns the health status topic for one machine. Kiosks
// publish retained online/offline payloads here, and the broker's LWT
// flips it to offline on an unexpected disconnect.
//
// Example: revend/machines/machine-7/status
func (Topics) MachineStatus(machineID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixMachines, machineID)
}

// MachineSession returns the topic announcing session changes at a
// machine, so the kiosk display can react when a user scans in.
//
// Example: revend/machines/machine-7/session
func (Topics) MachineSession(machineID string) string {
	return fmt.Sprintf("%s/%s/session", TopicPrefixMachines, machineID)
}

// MachineDetection returns the topic for detection events at a machine.
//
// Example: revend/machines/machine-7/detection
func (Topics) MachineDetection(machineID string) string {
	return fmt.Sprintf("%s/%s/detection", TopicPrefixMachines, machineID)
}

// SystemStatus returns the backend status topic.
//
// Example: revend/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllMachineStatuses returns a pattern matching every machine's status
// topic. The backend subscribes to this to maintain its fleet view.
//
// Pattern: revend/machines/+/status
func (Topics) AllMachineStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixMachines)
}

// AllMachineDetections returns a pattern matching every machine's
// detection topic.
//
// Pattern: revend/machines/+/detection
func (Topics) AllMachineDetections() string {
	return fmt.Sprintf("%s/+/detection", TopicPrefixMachines)
}

// MachineIDFromTopic extracts the machine ID from a per-machine topic
// such as "revend/machines/machine-7/status". Reports false for topics
// outside the machines hierarchy.
func MachineIDFromTopic(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixMachines+"/")
	if !found {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// AllTopics returns a pattern matching all Revend topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: revend/#
func (Topics) AllTopics() string {
	return TopicPrefixRoot + "/#"
}
