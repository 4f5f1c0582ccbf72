package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/activityflow/internal/producer"
	configpkg "github.com/drblury/activityflow/internal/runtime/config"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	metricspkg "github.com/drblury/activityflow/internal/runtime/metrics"
	"github.com/drblury/activityflow/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	// TransportRegistry resolves PubSubSystem. Defaults to transport.DefaultRegistry.
	TransportRegistry *transport.Registry
	// MetricsRegisterer receives the pipeline and router collectors.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
	// OnPublished runs after every asynchronous publish.
	OnPublished func(producer.Outcome)
}

// Service wires the activity topic to its producer and consumer groups: a
// Watermill router for per-message consumers, batch consumers running beside
// it, and the shared middleware chain.
type Service struct {
	Conf    *configpkg.Config
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Pipeline

	transport    transport.Transport
	capabilities transport.Capabilities
	publisher    message.Publisher
	router       *message.Router
	producer     *producer.Producer
	registerer   prometheus.Registerer

	consumers   []ConsumerInfo
	batches     []batchConsumer
	consumersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration and panics
// when it cannot. Register consumers on the returned Service before calling
// Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService is NewService returning construction errors instead of
// panicking.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating activity service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"topic":         conf.ActivityTopic,
		"config":        conf.String(),
	})

	registry := deps.TransportRegistry
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	tr, err := registry.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}

	registerer := deps.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	s := &Service{
		Conf:         conf,
		Logger:       log,
		Metrics:      metricspkg.New(registerer),
		transport:    tr,
		capabilities: registry.GetCapabilities(conf.PubSubSystem),
		publisher:    tr.Publisher,
		registerer:   registerer,
	}
	s.logCapabilityWarnings()

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	s.producer, err = producer.New(tr.Publisher, producer.Options{
		Topic: conf.ActivityTopic,
		Identity: producer.Identity{
			ServiceName:    conf.ServiceName,
			ServiceVersion: conf.ServiceVersion,
			Environment:    conf.Environment,
		},
		Timeout:     conf.PublishTimeout,
		MaxInFlight: conf.PublishMaxInFlight,
		OnComplete:  deps.OnPublished,
		Logger:      log,
		Metrics:     s.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) logCapabilityWarnings() {
	for _, warning := range s.capabilities.Warnings() {
		s.Logger.Info("Transport capability warning", loggingpkg.LogFields{
			"transport": s.Conf.PubSubSystem,
			"warning":   warning,
		})
	}
}

// Capabilities reports what the configured transport guarantees.
func (s *Service) Capabilities() transport.Capabilities {
	return s.capabilities
}

// Start runs every registered consumer until ctx is cancelled or one of them
// fails.
func (s *Service) Start(ctx context.Context) error {
	s.consumersMu.RLock()
	streams := len(s.consumers) - len(s.batches)
	batches := append([]batchConsumer(nil), s.batches...)
	s.consumersMu.RUnlock()

	if streams == 0 && len(batches) == 0 {
		return errspkg.ErrNoConsumers
	}

	g, ctx := errgroup.WithContext(ctx)
	s.startHTTPServers(ctx)
	if streams > 0 {
		g.Go(func() error {
			return routerRun(s.router, ctx)
		})
	}
	for _, b := range batches {
		g.Go(func() error {
			s.Logger.Info("Starting batch consumer", loggingpkg.LogFields{"consumer": b.info.Name, "group": b.info.Group})
			if err := b.source.Run(ctx); err != nil {
				return fmt.Errorf("batch consumer %s: %w", b.info.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close drains pending publishes, then stops consumers and closes the broker
// connections.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if err := s.producer.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	s.consumersMu.RLock()
	batches := append([]batchConsumer(nil), s.batches...)
	s.consumersMu.RUnlock()
	for _, b := range batches {
		if err := b.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close batch consumer %s: %w", b.info.Name, err))
		}
	}

	if err := s.router.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close router: %w", err))
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
}
