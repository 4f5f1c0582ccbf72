package errors

import sterrors "errors"

var (
	ErrServiceRequired       = sterrors.New("activityflow: event service is required")
	ErrHandlerRequired       = sterrors.New("activityflow: handler function is required")
	ErrConsumeTopicRequired  = sterrors.New("activityflow: consume topic is required")
	ErrHandlerNameRequired   = sterrors.New("activityflow: handler name is required")
	ErrConsumerGroupRequired = sterrors.New("activityflow: consumer group is required")
	ErrPublisherRequired     = sterrors.New("activityflow: publisher is required")
	ErrTopicRequired         = sterrors.New("activityflow: topic is required")
	ErrConfigRequired        = sterrors.New("activityflow: configuration is required")
	ErrLoggerRequired        = sterrors.New("activityflow: logger is required")
	ErrStoreRequired         = sterrors.New("activityflow: store is required")
	ErrNoConsumers           = sterrors.New("activityflow: no consumers registered")
	ErrDuplicateConsumer     = sterrors.New("activityflow: consumer already registered")
)

// ConfigValidationError marks an error produced while validating Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "activityflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
