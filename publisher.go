package micdaq

// The ZMQ status publisher broadcasts the latest acquisition readings so
// remote monitors can follow a run without touching the output files.

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"
)

// StatusPublisher publishes throttled LiveStatus messages on a ZMQ PUB
// socket as a two-frame message: a topic tag, then the JSON payload.
type StatusPublisher struct {
	socket *zmq.Socket
}

// statusTopic is the first frame of every published message, so subscribers
// can filter with a prefix subscription.
const statusTopic = "status"

// NewStatusPublisher binds a PUB socket on the given TCP port.
func NewStatusPublisher(port int) (*StatusPublisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("creating status socket: %w", err)
	}
	endpoint := fmt.Sprintf("tcp://*:%d", port)
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("binding status socket to %s: %w", endpoint, err)
	}
	return &StatusPublisher{socket: socket}, nil
}

// Publish sends one status message. Publishing is fire-and-forget: with no
// subscribers the message is dropped by ZMQ, and a send error is only
// logged, never allowed to disturb the acquisition.
func (p *StatusPublisher) Publish(s LiveStatus) {
	payload, err := json.Marshal(s)
	if err != nil {
		ProblemLogger.Printf("could not marshal status message: %v", err)
		return
	}
	if _, err := p.socket.SendMessage(statusTopic, payload); err != nil {
		ProblemLogger.Printf("could not publish status message: %v", err)
	}
}

// Close shuts the PUB socket.
func (p *StatusPublisher) Close() {
	p.socket.Close()
}
