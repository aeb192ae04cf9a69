package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RequestRoutingKey = "video.extension"
	StatusRoutingKey  = "video.extension.status"
)

type Topology struct {
	Exchange     string
	RequestQueue string
	StatusQueue  string
	DLQ          string
}

// Declare creates the exchange and queues. Rejected requests are dead-lettered
// to the DLQ through the default exchange.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DLQ, err)
	}
	if _, err := ch.QueueDeclare(t.StatusQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.StatusQueue, err)
	}
	_, err := ch.QueueDeclare(t.RequestQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DLQ,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.RequestQueue, err)
	}

	if err := ch.QueueBind(t.RequestQueue, RequestRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind request queue: %w", err)
	}
	if err := ch.QueueBind(t.StatusQueue, StatusRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}
