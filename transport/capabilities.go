package transport

// Capabilities describes what a broker guarantees for the activity topic.
// The runtime reads them at startup to warn about weakened guarantees.
type Capabilities struct {
	// SupportsOrdering indicates messages of one partition or queue are
	// delivered in publish order.
	SupportsOrdering bool

	// SupportsPartitioning indicates the partition_key metadata selects a
	// partition, so per-user ordering survives parallel consumers.
	SupportsPartitioning bool

	// SupportsConsumerGroups indicates independent groups each receive every
	// message while members of a group share the load.
	SupportsConsumerGroups bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// Durable indicates unacknowledged messages survive a process restart.
	Durable bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Warnings lists the pipeline guarantees this transport cannot provide.
func (c Capabilities) Warnings() []string {
	var out []string
	if !c.SupportsPartitioning {
		out = append(out, "partition_key is ignored; per-user ordering holds only with a single consumer per group")
	}
	if !c.SupportsConsumerGroups {
		out = append(out, "consumer groups are emulated; every subscriber receives every message")
	}
	if !c.SupportsReliableDelivery() {
		out = append(out, "no ack/nack; failed messages are not redelivered")
	}
	if !c.Durable {
		out = append(out, "messages do not survive a restart")
	}
	return out
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// KafkaCapabilities for Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsOrdering:       true,
		SupportsPartitioning:   true,
		SupportsConsumerGroups: true,
		SupportsTracing:        true,
		SupportsAck:            true,
		SupportsNack:           true,
		Durable:                true,
		MaxMessageSize:         1048576, // broker default message.max.bytes
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport with one durable
	// queue per consumer group.
	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsOrdering:       true,
		SupportsConsumerGroups: true,
		SupportsTracing:        true,
		SupportsAck:            true,
		SupportsNack:           true,
		Durable:                true,
	}

	// NATSCapabilities for NATS with one queue group per consumer group.
	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsConsumerGroups: true,
		SupportsTracing:        true,
		MaxMessageSize:         1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
