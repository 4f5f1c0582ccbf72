package activity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/activityflow/internal/runtime/jsoncodec"
)

func validEnvelope() *Envelope {
	return New(EntityExpense, ActionCreate).
		Target(9).
		Actor(5, "maria").
		Entity(42, "Groceries").
		Build()
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Envelope)
		field  string
	}{
		{"target", func(e *Envelope) { e.TargetUserID = nil }, FieldTargetUserID},
		{"entity type", func(e *Envelope) { e.EntityType = "" }, FieldEntityType},
		{"blank entity type", func(e *Envelope) { e.EntityType = "  " }, FieldEntityType},
		{"action", func(e *Envelope) { e.Action = "" }, FieldAction},
		{"target reported first", func(e *Envelope) {
			e.TargetUserID = nil
			e.Action = ""
		}, FieldTargetUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEnvelope()
			tt.mutate(e)

			err := Validate(e)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateAcceptsCompleteEnvelope(t *testing.T) {
	assert.NoError(t, Validate(validEnvelope()))
}

func TestValidateNil(t *testing.T) {
	err := Validate(nil)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
	assert.NotErrorIs(t, err, ErrMissingField)
}

func TestValidateAcceptsUnknownEntityAndAction(t *testing.T) {
	e := validEnvelope()
	e.EntityType = "SUBSCRIPTION"
	e.Action = "ARCHIVE"
	assert.NoError(t, Validate(e))
}

func TestRoundTripIgnoresUnknownFields(t *testing.T) {
	code := 201
	original := validEnvelope()
	original.EventID = "01HZX3T6Y9K2M4N5P6Q7R8S9TV"
	original.Timestamp = time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)
	original.CorrelationID = "corr-1"
	original.SourceService = "expense-service"
	original.ServiceVersion = "1.4.2"
	original.Environment = "prod"
	original.Status = StatusSuccess
	original.ResponseCode = &code
	original.ExecutionTimeMs = Int64(37)
	original.IsOwnAction = Bool(false)
	original.RequiresNotification = Bool(true)
	original.TargetUser = &UserSnapshot{ID: Int64(9), Username: "jon", FullName: "Jon Doe"}
	original.NewValues = NewValues().
		Set("amount", IntValue(1250)).
		Set("currency", StringValue("EUR")).
		Set("split", ListValue(IntValue(5), IntValue(9))).
		Set("note", NullValue())

	data, err := Encode(original)
	require.NoError(t, err)

	extended := strings.Replace(string(data), "{", `{"schemaRevision":7,"futureBlock":{"a":[1,2]},`, 1)

	decoded, err := Decode([]byte(extended))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsMalformedAndNonObjects(t *testing.T) {
	_, err := Decode([]byte(`{"targetUserId": 9,`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`"just text`))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrNotAnObject)

	_, err = Decode([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrNotAnObject)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(``))
	assert.ErrorIs(t, err, ErrNotAnObject)

	_, err = Decode([]byte(`{"targetUserId": "nine"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidateDeliveredRequiresEventID(t *testing.T) {
	e := validEnvelope()
	require.NoError(t, Validate(e))

	for _, id := range []string{"", "   "} {
		e.EventID = id
		err := ValidateDelivered(e)
		assert.ErrorIs(t, err, ErrMissingField)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, FieldEventID, verr.Field)
	}

	e.EventID = "01J0EVENT"
	assert.NoError(t, ValidateDelivered(e))

	e.TargetUserID = nil
	var verr *ValidationError
	require.True(t, errors.As(ValidateDelivered(e), &verr))
	assert.Equal(t, FieldTargetUserID, verr.Field)
}

func TestEncodeUsesCamelCaseWireNames(t *testing.T) {
	e := validEnvelope()
	e.RequiresAudit = Bool(false)

	data, err := Encode(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, jsoncodec.Unmarshal(data, &raw))
	assert.EqualValues(t, 9, raw["targetUserId"])
	assert.EqualValues(t, 5, raw["actorUserId"])
	assert.Equal(t, "EXPENSE", raw["entityType"])
	assert.Equal(t, "CREATE", raw["action"])
	assert.Equal(t, false, raw["requiresAudit"])
	assert.NotContains(t, raw, "requiresNotification")
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestFlagDefaults(t *testing.T) {
	e := &Envelope{}
	assert.True(t, e.AuditRequired())
	assert.True(t, e.NotificationRequired())
	assert.False(t, e.OwnAction())
	assert.False(t, e.FriendActivityFlag())

	e.RequiresAudit = Bool(false)
	e.RequiresNotification = Bool(false)
	e.IsOwnAction = Bool(true)
	e.IsFriendActivity = Bool(true)
	assert.False(t, e.AuditRequired())
	assert.False(t, e.NotificationRequired())
	assert.True(t, e.OwnAction())
	assert.True(t, e.FriendActivityFlag())
}

func TestCloneIsDeep(t *testing.T) {
	e := validEnvelope()
	e.NewValues = NewValues().Set("amount", IntValue(10))
	e.ActorUser = &UserSnapshot{ID: Int64(5)}

	c := e.Clone()
	*c.TargetUserID = 100
	c.NewValues.Set("amount", IntValue(99))
	*c.ActorUser.ID = 77

	assert.Equal(t, int64(9), *e.TargetUserID)
	v, _ := e.NewValues.Get("amount")
	n, _ := v.Int64()
	assert.Equal(t, int64(10), n)
	assert.Equal(t, int64(5), *e.ActorUser.ID)
	assert.Nil(t, (*Envelope)(nil).Clone())
}

func TestBuilder(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e := New(EntityBill, ActionUpdate).
		TargetUser(UserSnapshot{ID: Int64(3), Username: "ana"}).
		ActorUser(UserSnapshot{ID: Int64(4)}).
		ActorRole("ADMIN").
		Request("PUT", "/api/bills/7", "10.0.0.1", "curl/8").
		Correlation("c-1", "r-1", "s-1").
		ExecutionTime(1500 * time.Millisecond).
		Failed("boom", 500).
		RequiresAudit(true).
		RequiresNotification(false).
		FriendActivity(true).
		At(at).
		Build()

	assert.Equal(t, int64(3), *e.TargetUserID)
	assert.Equal(t, int64(4), *e.ActorUserID)
	assert.Equal(t, "ADMIN", e.ActorRole)
	assert.Equal(t, "PUT", e.HTTPMethod)
	assert.Equal(t, "c-1", e.CorrelationID)
	assert.Equal(t, int64(1500), *e.ExecutionTimeMs)
	assert.Equal(t, StatusFailure, e.Status)
	assert.Equal(t, 500, *e.ResponseCode)
	assert.False(t, e.NotificationRequired())
	assert.True(t, e.FriendActivityFlag())
	assert.Equal(t, at, e.Timestamp)
}

func TestBuilderBuildReturnsIndependentCopies(t *testing.T) {
	b := New(EntityBudget, ActionDelete).Target(1)
	first := b.Build()
	b.Target(2)
	second := b.Build()

	assert.Equal(t, int64(1), *first.TargetUserID)
	assert.Equal(t, int64(2), *second.TargetUserID)
}
