/*
Package runtime hosts the activity pipeline: one Service owns the broker
connection, the producer for the activity topic and every consumer group
reading it.

# Architecture Overview

Domain code publishes activity envelopes through Service.Publish or
Service.PublishSync. The envelope is validated, enriched with the producer
identity and keyed by its target user, so every event about one user lands on
the same partition and is consumed in order.

Each consumer group reads the whole topic independently. Per-message groups
run as handlers on a Watermill router; batch groups run beside the router and
acknowledge a batch only once all of its items were attempted.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - Message router (Watermill)
  - The transport's publisher and per-group subscribers
  - The activity producer
  - Middleware chain
  - HTTP servers for metrics and consumer totals

## Consumer Registration (registration.go)

RegisterAuditConsumer and RegisterNotificationConsumer attach the two
standard groups; RegisterConsumer attaches any consumer.Processor. On Kafka,
batch consumers join the consumer group directly and commit offsets per
settled batch.

## Middleware (middleware.go)

  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads
  - Tracer: OpenTelemetry consumer spans
  - Metrics: Prometheus router metrics and the /metrics endpoint
  - Retry: In-process retries with exponential backoff, when configured
  - PoisonQueue: Keeps unparseable payloads on a side topic, when configured
  - Recoverer: Panic recovery

# Sub-packages

  - config/: Environment configuration with validation
  - errors/: Sentinel errors and error types
  - ids/: ULID event identifiers
  - jsoncodec/: JSON codec
  - logging/: Logger interface and adapters
  - metadata/: Message metadata keys and conversion
  - metrics/: Producer and consumer statistics

# Usage Example

	cfg, _ := config.Load()
	svc := runtime.NewService(cfg, logger, ctx, runtime.ServiceDependencies{})

	if err := runtime.RegisterAuditConsumer(svc, auditStore, false); err != nil {
		return err
	}
	return svc.Start(ctx)
*/
package runtime
