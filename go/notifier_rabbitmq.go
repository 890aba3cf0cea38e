package slurmproxy

import (
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQNotifier publishes notifications to an AMQP broker. A connection
// is dialed per notification and closed afterwards; terminal transitions are
// rare enough that holding a channel open buys nothing.
type RabbitMQNotifier struct {
	Config RabbitMQConfig
}

// NewRabbitMQNotifier creates a new RabbitMQNotifier instance.
func NewRabbitMQNotifier(config RabbitMQConfig) *RabbitMQNotifier {
	return &RabbitMQNotifier{Config: config}
}

// Notify declares the queue from the parameter bag and publishes the message
// to the configured exchange and routing key.
func (n *RabbitMQNotifier) Notify(message string, params map[string]string) error {
	queue := params["queue"]
	exchange := params["exchange"]
	routingKey := params["routing_key"]

	conn, err := amqp.Dial(n.Config.URL())
	if err != nil {
		return &TransportError{Op: "amqp dial", Err: err}
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return &TransportError{Op: "amqp channel", Err: err}
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(queue, false, false, false, false, nil); err != nil {
		return &TransportError{Op: "amqp queue declare", Err: err}
	}

	publishing := amqp.Publishing{
		ContentType: "text/plain",
		MessageId:   uuid.NewString(),
		Body:        []byte(message),
	}
	if err := channel.Publish(exchange, routingKey, false, false, publishing); err != nil {
		return &TransportError{Op: "amqp publish", Err: err}
	}
	return nil
}

// assert that RabbitMQNotifier implements Notifier at compile-time rather
// than run-time
var _ Notifier = (*RabbitMQNotifier)(nil)
