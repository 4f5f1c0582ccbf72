// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/activityflow/transport/channel"
	_ "github.com/drblury/activityflow/transport/kafka"
	_ "github.com/drblury/activityflow/transport/nats"
	_ "github.com/drblury/activityflow/transport/rabbitmq"
)
