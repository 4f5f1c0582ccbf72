package activity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEnvelope matches every envelope validation failure.
	ErrInvalidEnvelope = errors.New("activity: invalid envelope")
	// ErrMissingField matches failures caused by an absent mandatory field.
	ErrMissingField = errors.New("activity: missing required field")
)

// Wire names of the mandatory fields, as reported by ValidationError.Field.
const (
	FieldTargetUserID = "targetUserId"
	FieldEntityType   = "entityType"
	FieldAction       = "action"
	FieldEventID      = "eventId"
)

// ValidationError names the first mandatory field found missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("activity: missing required field %q", e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrMissingField || target == ErrInvalidEnvelope
}

// Validate checks the mandatory fields in a fixed order: targetUserId,
// entityType, action. It has no side effects.
func Validate(e *Envelope) error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	if e.TargetUserID == nil {
		return &ValidationError{Field: FieldTargetUserID}
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		return &ValidationError{Field: FieldEntityType}
	}
	if strings.TrimSpace(string(e.Action)) == "" {
		return &ValidationError{Field: FieldAction}
	}
	return nil
}

// ValidateDelivered checks an envelope read back from the topic. On top of
// Validate it requires the eventId that enrichment always sets, since stores
// deduplicate on it.
func ValidateDelivered(e *Envelope) error {
	if err := Validate(e); err != nil {
		return err
	}
	if strings.TrimSpace(e.EventID) == "" {
		return &ValidationError{Field: FieldEventID}
	}
	return nil
}
