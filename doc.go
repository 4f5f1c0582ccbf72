// Package activityflow is a single-topic activity event bus built on
// Watermill. Domain services publish one activity Envelope per action on the
// activity topic; independent consumer groups read the whole topic and decide
// from the envelope's routing flags whether to audit it, notify the target
// user or record it in a friend's activity feed.
//
// A Service owns the broker connection. It validates and enriches envelopes
// before they leave the process, keys every record by its target user so that
// events about one user stay in order, and acknowledges a consumed record only
// after its side effects were stored. Failed side effects leave the record
// unacknowledged so the broker redelivers it; stores are idempotent by event
// ID.
//
// # Transports
//
// The transport is read from Config.PubSubSystem:
//   - channel: In-memory Go channels for tests and single-process setups
//   - kafka: Partitioned log with consumer groups; batch consumers commit per batch
//   - rabbitmq: Durable queue per consumer group
//   - nats: Queue group per consumer group
//
// Import the transports via _ "github.com/drblury/activityflow/transport/transports",
// or register a single package when the binary should not link the others.
//
// # Consumers
//
// RegisterAuditConsumer and RegisterNotificationConsumer attach the two
// standard groups. The audit group can run in batch mode: records are
// collected up to BatchSize or BatchMaxWait and the batch is acknowledged once
// every item was attempted.
//
// # Middleware
//
// The default chain adds correlation IDs, debug logging, tracing, Prometheus
// metrics, optional retries, optional poison queue forwarding and panic
// recovery. Custom middleware can be added via ServiceDependencies.Middlewares.
package activityflow
