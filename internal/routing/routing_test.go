package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/activityflow/internal/activity"
)

func envelope(actor, target *int64) *activity.Envelope {
	return &activity.Envelope{
		ActorUserID:  actor,
		TargetUserID: target,
		EntityType:   activity.EntityExpense,
		Action:       activity.ActionCreate,
	}
}

func TestShouldAudit(t *testing.T) {
	e := envelope(activity.Int64(1), activity.Int64(1))
	assert.True(t, ShouldAudit(e), "unset requiresAudit defaults to true")

	e.RequiresAudit = activity.Bool(true)
	assert.True(t, ShouldAudit(e))

	e.RequiresAudit = activity.Bool(false)
	assert.False(t, ShouldAudit(e))

	assert.False(t, ShouldAudit(nil))
}

func TestShouldNotifyTruthTable(t *testing.T) {
	flags := []*bool{nil, activity.Bool(true), activity.Bool(false)}

	for _, requires := range flags {
		for _, own := range flags {
			e := envelope(nil, activity.Int64(9))
			e.RequiresNotification = requires
			e.IsOwnAction = own

			requiresValue := requires == nil || *requires
			ownValue := own != nil && *own
			assert.Equal(t, requiresValue && ownValue, ShouldNotify(e),
				"requiresNotification=%v isOwnAction=%v", describe(requires), describe(own))
		}
	}
	assert.False(t, ShouldNotify(nil))
}

func TestShouldNotifyIgnoresActorIDs(t *testing.T) {
	// Consumers trust the producer's stamp even if the ids say otherwise.
	e := envelope(activity.Int64(9), activity.Int64(9))
	e.IsOwnAction = activity.Bool(false)
	assert.False(t, ShouldNotify(e))
}

func TestShouldTreatAsFriendActivity(t *testing.T) {
	assert.True(t, ShouldTreatAsFriendActivity(envelope(activity.Int64(5), activity.Int64(9))))
	assert.False(t, ShouldTreatAsFriendActivity(envelope(activity.Int64(5), activity.Int64(5))))
	assert.False(t, ShouldTreatAsFriendActivity(envelope(nil, activity.Int64(5))))

	flagged := envelope(activity.Int64(5), activity.Int64(5))
	flagged.IsFriendActivity = activity.Bool(true)
	assert.True(t, ShouldTreatAsFriendActivity(flagged))

	explicitFalse := envelope(activity.Int64(5), activity.Int64(9))
	explicitFalse.IsFriendActivity = activity.Bool(false)
	assert.True(t, ShouldTreatAsFriendActivity(explicitFalse), "differing ids win over an explicit false flag")

	assert.False(t, ShouldTreatAsFriendActivity(nil))
}

func TestEvaluateAllThreeCanHold(t *testing.T) {
	e := envelope(activity.Int64(5), activity.Int64(9))
	e.IsOwnAction = activity.Bool(true)
	e.IsFriendActivity = activity.Bool(true)

	d := Evaluate(e)
	assert.Equal(t, Decision{Audit: true, Notify: true, FriendActivity: true}, d)
	assert.True(t, d.Any())
}

func TestEvaluateFriendActingOnBehalf(t *testing.T) {
	e := envelope(activity.Int64(5), activity.Int64(9))
	e.IsOwnAction = activity.Bool(false)

	assert.Equal(t, Decision{Audit: true, Notify: false, FriendActivity: true}, Evaluate(e))
}

func TestEvaluateNothingApplies(t *testing.T) {
	e := envelope(activity.Int64(9), activity.Int64(9))
	e.IsOwnAction = activity.Bool(true)
	e.RequiresAudit = activity.Bool(false)
	e.RequiresNotification = activity.Bool(false)

	assert.False(t, Evaluate(e).Any())
}

func describe(b *bool) string {
	if b == nil {
		return "unset"
	}
	if *b {
		return "true"
	}
	return "false"
}
