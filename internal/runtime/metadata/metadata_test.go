package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{KeyEventID: "1", KeyAction: "CREATE"}
	clone := original.Clone()
	clone[KeyEventID] = "changed"

	assert.Equal(t, "1", original[KeyEventID])
	assert.Len(t, clone, len(original))
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	assert.NotNil(t, cloned)
	assert.Empty(t, cloned)
}

func TestWithSkipsEmptyValues(t *testing.T) {
	base := Metadata{KeyEventID: "e-1"}

	enriched := base.With(KeyPartitionKey, "9").With(KeySourceService, "")

	assert.NotContains(t, base, KeyPartitionKey, "base must stay unchanged")
	assert.Equal(t, "9", enriched[KeyPartitionKey])
	assert.NotContains(t, enriched, KeySourceService)
}

func TestLogFields(t *testing.T) {
	md := Metadata{
		KeyEventID:       "e-1",
		KeyCorrelationID: "c-1",
		KeyPartitionKey:  "9",
		KeyAction:        "CREATE",
	}

	fields := md.LogFields()
	assert.Equal(t, map[string]any{
		KeyEventID:       "e-1",
		KeyCorrelationID: "c-1",
		KeyPartitionKey:  "9",
	}, fields)
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{KeySourceService: "expense-service"}
	wm := ToWatermill(md)
	assert.Equal(t, "expense-service", wm[KeySourceService])

	wm[KeySourceService] = "mutation"
	assert.Equal(t, "expense-service", md[KeySourceService])

	assert.Empty(t, ToWatermill(nil))

	roundTrip := FromWatermill(message.Metadata{KeyAction: "DELETE"})
	assert.Equal(t, "DELETE", roundTrip[KeyAction])
	assert.NotNil(t, FromWatermill(nil))
}
