package jsoncodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	EventID string `json:"eventId"`
	Amount  int    `json:"amount"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(record{EventID: "e-1", Amount: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventId":"e-1","amount":42}`, string(data))

	var out record
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, record{EventID: "e-1", Amount: 42}, out)
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	var out record
	err := Unmarshal([]byte(`{"eventId":"e-2","amount":1,"addedLater":{"x":true}}`), &out)
	require.NoError(t, err)
	assert.Equal(t, "e-2", out.EventID)
}

func TestMarshalString(t *testing.T) {
	s, err := MarshalString(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, s)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":[1,2,3]}`)))
	assert.False(t, Valid([]byte(`{"a":`)))
	assert.False(t, Valid([]byte(`not json`)))
}
