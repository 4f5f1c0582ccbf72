package runtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/activityflow/internal/consumer"
	idspkg "github.com/drblury/activityflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/activityflow/internal/runtime/metadata"
)

const consumerTracerName = "github.com/drblury/activityflow/consumer"

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
// Returning a nil middleware skips the registration.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour. Zero
// values fall back to the service configuration.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults(s *Service) RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 && s.Conf != nil {
		cfg.MaxRetries = s.Conf.RetryMaxRetries
	}
	if cfg.InitialInterval <= 0 && s.Conf != nil {
		cfg.InitialInterval = s.Conf.RetryInitialInterval
	}
	if cfg.MaxInterval <= 0 && s.Conf != nil {
		cfg.MaxInterval = s.Conf.RetryMaxInterval
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return !isUnprocessable(err) }
	}
	return cfg
}

func isUnprocessable(err error) bool {
	var unprocessable *consumer.UnprocessableError
	return errors.As(err, &unprocessable)
}

// DefaultMiddlewares returns the standard middleware chain used by the Service constructor.
// Retry and poison queue only take effect when configured.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Watermill's Prometheus router metrics and serves
// them, together with the pipeline collectors and consumer totals, on
// MetricsPort.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			if err := s.Metrics.Register(); err != nil {
				return nil, err
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				s.registerer,
				"activityflow",
				s.Conf.PubSubSystem,
			)
			// Adds the router middleware and the publisher/subscriber decorators.
			metricsBuilder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", metricsHandler(s.registerer))
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/api/consumers", s.consumersHandler())
			}
			return nil, nil
		},
	}
}

func metricsHandler(registerer prometheus.Registerer) http.Handler {
	if gatherer, ok := registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return correlationIDMiddleware, nil
		},
	}
}

// LogMessagesMiddleware logs the metadata and payload of handled messages at debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry consumer span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return tracerMiddleware(s.Conf.ActivityTopic), nil
		},
	}
}

// RetryMiddleware retries failed handlers in process before the message is
// nacked. It is skipped when no retries are configured. Unprocessable
// payloads are never retried.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			normalized := cfg.withDefaults(s)
			if normalized.MaxRetries <= 0 {
				return nil, nil
			}
			return retryMiddleware(normalized, s.Logger), nil
		},
	}
}

// PoisonQueueMiddleware publishes messages whose error matches filter to
// PoisonQueue and acknowledges them. The default filter matches payloads
// that could not be parsed. It is skipped when no poison queue is configured.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if s.Conf.PoisonQueue == "" {
				return nil, nil
			}
			f := filter
			if f == nil {
				f = isUnprocessable
			}
			return s.poisonMiddlewareWithFilter(f)
		},
	}
}

// RecovererMiddleware converts panics into handler errors so the message is nacked.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}

// correlationIDMiddleware fills a missing correlation ID from the event ID,
// or a fresh ULID when the message carries neither.
func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
			id := msg.Metadata.Get(metadatapkg.KeyEventID)
			if id == "" {
				id = idspkg.NewEventID()
			}
			msg.Metadata.Set(metadatapkg.KeyCorrelationID, id)
		}
		return h(msg)
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"handler":      message.HandlerNameFromCtx(msg.Context()),
				"payload":      string(msg.Payload),
				"metadata":     metadatapkg.FromWatermill(msg.Metadata).LogFields(),
			})
			return h(msg)
		}
	}
}

func tracerMiddleware(topic string) message.HandlerMiddleware {
	tracer := otel.Tracer(consumerTracerName)
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := tracer.Start(msg.Context(), "activity.consume",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.destination.name", topic),
					attribute.String("messaging.consumer.group.name", message.HandlerNameFromCtx(msg.Context())),
					attribute.String("messaging.message.id", msg.UUID),
					attribute.String("activity.event_id", msg.Metadata.Get(metadatapkg.KeyEventID)),
					attribute.String("activity.partition_key", msg.Metadata.Get(metadatapkg.KeyPartitionKey)),
				),
			)
			defer span.End()
			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "handler failed")
			}
			return msgs, err
		}
	}
}

func retryMiddleware(cfg RetryMiddlewareConfig, logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      2,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return cfg.RetryIf(params.Err)
		},
		Logger: loggingpkg.NewWatermillAdapter(logger),
	}.Middleware
}

// poisonMiddlewareWithFilter publishes poison messages based on the provided filter.
func (s *Service) poisonMiddlewareWithFilter(filter func(err error) bool) (message.HandlerMiddleware, error) {
	if s.publisher == nil {
		return nil, errors.New("publisher is required for poison queue middleware")
	}

	mw, err := middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, filter)
	if err != nil {
		return nil, err
	}

	return func(h message.HandlerFunc) message.HandlerFunc {
		counted := func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := h(msg)
			if err != nil && filter(err) {
				s.Metrics.RecordPoisoned(message.HandlerNameFromCtx(msg.Context()), 1)
			}
			return msgs, err
		}
		return mw(counted)
	}, nil
}
