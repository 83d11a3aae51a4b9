package mqtt

import "fmt"

// topicPrefix is the base of all supervisor topics.
// Scheme: wallbox/{client_id}/{leaf}
const topicPrefix = "wallbox"

// Availability payloads. Retained on the availability topic so
// subscribers always see the supervisor's liveness, including via LWT.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics provides builders for supervisor MQTT topics. Using these
// helpers keeps topic naming consistent across publisher and consumers.
type Topics struct{}

// Status returns the retained charger status topic.
//
// Example: wallbox/wallboxd/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", topicPrefix, clientID)
}

// Availability returns the supervisor liveness topic.
//
// Example: wallbox/wallboxd/availability
func (Topics) Availability(clientID string) string {
	return fmt.Sprintf("%s/%s/availability", topicPrefix, clientID)
}
