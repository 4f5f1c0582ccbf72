package activity

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/drblury/activityflow/internal/runtime/jsoncodec"
)

var (
	// ErrMalformed matches every Decode failure.
	ErrMalformed = errors.New("activity: malformed envelope")
	// ErrNotAnObject is returned by Decode for well-formed JSON that is not an
	// object, such as an array or a bare string. It also matches ErrMalformed.
	ErrNotAnObject = fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
)

// Encode serializes an envelope to its JSON wire form.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	data, err := jsoncodec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("activity: encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a JSON envelope. Unknown fields are ignored so older
// consumers keep working when producers add fields.
func Decode(data []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if len(trimmed) > 0 && !jsoncodec.Valid(trimmed) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
		}
		return nil, ErrNotAnObject
	}
	var e Envelope
	if err := jsoncodec.Unmarshal(trimmed, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &e, nil
}
