package relay

import (
	"context"
	"fmt"
	"sync"
)

// Request performs a round-trip to a device: subscribe to the response
// topic, publish the request, and wait for the first response message.
//
// The response channel resolves exactly once even if the broker delivers
// duplicates (QoS 1). The caller bounds the wait through ctx; on timeout or
// cancellation the subscription is cleaned up and ErrTimeout is returned.
func (c *Client) Request(ctx context.Context, requestTopic, responseTopic string, payload []byte, qos byte) ([]byte, error) {
	if requestTopic == "" || responseTopic == "" {
		return nil, ErrInvalidTopic
	}

	response := make(chan []byte, 1)
	var once sync.Once

	if err := c.Subscribe(responseTopic, qos, func(_ string, msg []byte) error {
		once.Do(func() {
			// Copy: paho may reuse the payload buffer after the handler returns.
			cpy := make([]byte, len(msg))
			copy(cpy, msg)
			response <- cpy
		})
		return nil
	}); err != nil {
		return nil, err
	}
	defer func() {
		_ = c.Unsubscribe(responseTopic) //nolint:errcheck // Best effort cleanup
	}()

	if err := c.Publish(requestTopic, payload, qos, false); err != nil {
		return nil, err
	}

	select {
	case msg := <-response:
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
