package activityflow

import (
	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/consumer"
	"github.com/drblury/activityflow/internal/producer"
	"github.com/drblury/activityflow/internal/routing"
	runtimepkg "github.com/drblury/activityflow/internal/runtime"
	configpkg "github.com/drblury/activityflow/internal/runtime/config"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	idspkg "github.com/drblury/activityflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/activityflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	metricspkg "github.com/drblury/activityflow/internal/runtime/metrics"
	"github.com/drblury/activityflow/internal/store"
	"github.com/drblury/activityflow/internal/store/memory"
	"github.com/drblury/activityflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	// Envelope and its building blocks
	Envelope     = activity.Envelope
	UserSnapshot = activity.UserSnapshot
	EntityType   = activity.EntityType
	Action       = activity.Action
	Status       = activity.Status
	Value        = activity.Value
	Values       = activity.Values
	Builder      = activity.Builder

	ValidationError = activity.ValidationError

	// Producer side
	Receipt      = producer.Receipt
	Future       = producer.Future
	Outcome      = producer.Outcome
	PublishError = producer.PublishError

	// Consumer side
	ConsumerRegistration = runtimepkg.ConsumerRegistration
	ConsumerInfo         = runtimepkg.ConsumerInfo
	ConsumerStatus       = runtimepkg.ConsumerStatus
	ConsumerCounts       = metricspkg.ConsumerCounts
	Processor            = consumer.Processor
	Result               = consumer.Result
	ResultState          = consumer.State
	Delivery             = consumer.Delivery
	BatchSummary         = consumer.BatchSummary
	RoutingDecision      = routing.Decision

	// Collaborators
	AuditRecord         = store.AuditRecord
	Notification        = store.Notification
	ActivityRecord      = store.ActivityRecord
	AuditStore          = store.AuditStore
	NotificationStore   = store.NotificationStore
	FriendActivityStore = store.FriendActivityStore
	Dispatcher          = store.Dispatcher

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
	LoggerOptions = loggingpkg.Options

	ConfigValidationError = errspkg.ConfigValidationError

	// Transports
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

// Entity types, actions and statuses carried by envelopes.
const (
	EntityExpense       = activity.EntityExpense
	EntityBudget        = activity.EntityBudget
	EntityCategory      = activity.EntityCategory
	EntityPaymentMethod = activity.EntityPaymentMethod
	EntityBill          = activity.EntityBill
	EntityUser          = activity.EntityUser
	EntityFriendship    = activity.EntityFriendship

	ActionCreate = activity.ActionCreate
	ActionUpdate = activity.ActionUpdate
	ActionDelete = activity.ActionDelete
	ActionView   = activity.ActionView

	StatusSuccess = activity.StatusSuccess
	StatusFailure = activity.StatusFailure
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewEnvelope    = activity.New
	EncodeEnvelope = activity.Encode
	DecodeEnvelope = activity.Decode
	Validate       = activity.Validate
	NewValues      = activity.NewValues
	ValuesFromMap  = activity.ValuesFromMap
	Int64          = activity.Int64
	Bool           = activity.Bool

	PartitionKey = producer.PartitionKey

	ShouldAudit                 = routing.ShouldAudit
	ShouldNotify                = routing.ShouldNotify
	ShouldTreatAsFriendActivity = routing.ShouldTreatAsFriendActivity
	EvaluateRouting             = routing.Evaluate

	RegisterConsumer             = runtimepkg.RegisterConsumer
	RegisterAuditConsumer        = runtimepkg.RegisterAuditConsumer
	RegisterNotificationConsumer = runtimepkg.RegisterNotificationConsumer
	AuditProcessor               = consumer.AuditProcessor
	NotificationProcessor        = consumer.NotificationProcessor
	Describe                     = consumer.Describe

	NewMemoryAuditStore          = memory.NewAuditStore
	NewMemoryNotificationStore   = memory.NewNotificationStore
	NewMemoryFriendActivityStore = memory.NewFriendActivityStore
	NewMemoryDispatcher          = memory.NewDispatcher

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/activityflow/transport/kafka"
	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	GetCapabilities          = transport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrServiceRequired       = errspkg.ErrServiceRequired
	ErrHandlerRequired       = errspkg.ErrHandlerRequired
	ErrConsumerGroupRequired = errspkg.ErrConsumerGroupRequired
	ErrPublisherRequired     = errspkg.ErrPublisherRequired
	ErrTopicRequired         = errspkg.ErrTopicRequired
	ErrConfigRequired        = errspkg.ErrConfigRequired
	ErrLoggerRequired        = errspkg.ErrLoggerRequired
	ErrStoreRequired         = errspkg.ErrStoreRequired
	ErrNoConsumers           = errspkg.ErrNoConsumers
	ErrDuplicateConsumer     = errspkg.ErrDuplicateConsumer

	ErrInvalidEnvelope     = activity.ErrInvalidEnvelope
	ErrMissingField        = activity.ErrMissingField
	ErrMalformed           = activity.ErrMalformed
	ErrPublishFailed       = producer.ErrPublishFailed
	ErrProducerClosed      = producer.ErrProducerClosed
	ErrParseFailed         = consumer.ErrParseFailed
	ErrPersistFailed       = consumer.ErrPersistFailed
	ErrBatchInterrupted    = consumer.ErrBatchInterrupted
	ErrUnknownTransport    = transport.ErrUnknownTransport
	ErrIncompleteTransport = transport.ErrIncompleteTransport

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger  = loggingpkg.NewZapServiceLogger

	// NewEventID generates a lexically sortable ULID event identifier.
	NewEventID = idspkg.NewEventID
)
