package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// maxPayloadSize caps published payloads (1MB), aligning with typical
// broker limits.
const maxPayloadSize = 1 << 20

// statusMessage is the JSON envelope published on the status topic.
type statusMessage struct {
	Data              map[string]any `json:"data"`
	LastUpdateSuccess bool           `json:"last_update_success"`
	Timestamp         string         `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishStatus publishes the charger snapshot, retained, on the status
// topic. New subscribers immediately receive the last-known state.
//
// Parameters:
//   - data: Snapshot fields from the supervisor
//   - lastUpdateSuccess: The snapshot's availability verdict
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) PublishStatus(data map[string]any, lastUpdateSuccess bool) error {
	payload, err := json.Marshal(statusMessage{
		Data:              data,
		LastUpdateSuccess: lastUpdateSuccess,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding status: %w", ErrPublishFailed, err)
	}

	topic := Topics{}.Status(c.cfg.Broker.ClientID)
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// PublishAvailability publishes the retained liveness payload.
func (c *Client) PublishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}

	topic := Topics{}.Availability(c.cfg.Broker.ClientID)
	return c.Publish(topic, []byte(payload), byte(c.cfg.QoS), true)
}
