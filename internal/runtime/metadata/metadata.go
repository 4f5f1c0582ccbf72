package metadata

// Keys stamped on every activity message. They duplicate envelope fields so
// transports, middlewares and logs can act on a message without decoding the
// payload.
const (
	KeyEventID       = "event_id"
	KeyCorrelationID = "correlation_id"
	KeyPartitionKey  = "partition_key"
	KeyEntityType    = "entity_type"
	KeyAction        = "action"
	KeySourceService = "source_service"
	KeyContentType   = "content_type"
)

// ContentTypeEnvelope identifies the JSON activity envelope schema.
const ContentTypeEnvelope = "application/vnd.activity-envelope+json"

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped so optional envelope fields do not produce blank headers.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// LogFields returns the well-known keys present in m, suitable for log context.
func (m Metadata) LogFields() map[string]any {
	fields := make(map[string]any, 4)
	for _, key := range []string{KeyEventID, KeyCorrelationID, KeyPartitionKey, KeySourceService} {
		if v, ok := m[key]; ok && v != "" {
			fields[key] = v
		}
	}
	return fields
}
