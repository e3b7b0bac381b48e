package relay

import (
	"fmt"
	"strings"
)

// Topic prefixes for the device relay.
//
// Device traffic uses the scheme oa/device/{device_id}/{direction}/{...}:
//
//	oa/device/abc123/event/load          device -> server event
//	oa/device/abc123/event-ack/{corr}    server -> device event acknowledgement
//	oa/device/abc123/command/brightness/set  server -> device command
//	oa/device/abc123/ack/{corr}          device -> server command acknowledgement
const (
	// TopicPrefix is the base for all relay topics.
	TopicPrefix = "oa"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "oa/device"

	// TopicPrefixServer is the base for server status topics.
	TopicPrefixServer = "oa/server"
)

// Topics provides builders for relay topics. Using these helpers keeps
// topic naming consistent between the driver layer and tests.
type Topics struct{}

// DeviceEvent returns the topic a device publishes an event on.
// Event names may themselves contain slashes (e.g. "service/load").
//
// Example: oa/device/abc123/event/connect
func (Topics) DeviceEvent(deviceID, event string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefixDevice, deviceID, event)
}

// DeviceEvents returns the wildcard subscription covering all events from
// one device.
//
// Example: oa/device/abc123/event/#
func (Topics) DeviceEvents(deviceID string) string {
	return fmt.Sprintf("%s/%s/event/#", TopicPrefixDevice, deviceID)
}

// DeviceEventAck returns the topic the server acknowledges an event on.
//
// Example: oa/device/abc123/event-ack/corr-1
func (Topics) DeviceEventAck(deviceID, correlationID string) string {
	return fmt.Sprintf("%s/%s/event-ack/%s", TopicPrefixDevice, deviceID, correlationID)
}

// DeviceCommand returns the topic the server sends a command on.
// Command names may contain slashes (e.g. "brightness/set").
//
// Example: oa/device/abc123/command/lightOn/set
func (Topics) DeviceCommand(deviceID, command string) string {
	return fmt.Sprintf("%s/%s/command/%s", TopicPrefixDevice, deviceID, command)
}

// DeviceAck returns the topic a device acknowledges a command on.
//
// Example: oa/device/abc123/ack/corr-1
func (Topics) DeviceAck(deviceID, correlationID string) string {
	return fmt.Sprintf("%s/%s/ack/%s", TopicPrefixDevice, deviceID, correlationID)
}

// ServerStatus returns the retained server online/offline status topic.
func (Topics) ServerStatus() string {
	return TopicPrefixServer + "/status"
}

// ParseDeviceEvent extracts the device id and event name from a device
// event topic. Returns ok=false if the topic is not a device event.
func ParseDeviceEvent(topic string) (deviceID, event string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevice+"/")
	if !found {
		return "", "", false
	}

	deviceID, rest, found = strings.Cut(rest, "/")
	if !found || deviceID == "" {
		return "", "", false
	}

	event, found = strings.CutPrefix(rest, "event/")
	if !found || event == "" {
		return "", "", false
	}

	return deviceID, event, true
}
