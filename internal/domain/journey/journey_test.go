package journey

import (
	"testing"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func referencePolicy() campaign.Policy {
	return campaign.Policy{
		Enabled:               true,
		InactivityMinutes:     30,
		MaxAttempts:           3,
		AttemptDelaysMinutes:  []int{30, 360, 1440},
		DiscountLadderPercent: []int{0, 5, 10},
		MaxDiscountPercent:    10,
		RecoveryWindowHours:   72,
		SendEmail:             true,
	}
}

func activeJourney(id string) Journey {
	return Journey{
		ID:                  id,
		Status:              StatusActive,
		CartTotalMinorUnits: 12500,
		Currency:            "EUR",
		LastActivityAt:      t0,
		CreatedAt:           t0,
		UpdatedAt:           t0,
	}
}

func TestTransition_ActiveToTerminal(t *testing.T) {
	for _, to := range []Status{StatusRecovered, StatusExpired, StatusCancelled} {
		t.Run(string(to), func(t *testing.T) {
			j := activeJourney("j1")
			next := t0.Add(time.Hour)
			j.NextAttemptAt = &next

			require.NoError(t, j.Transition(to, t0.Add(2*time.Hour), TransitionInput{Reason: "test"}))
			assert.Equal(t, to, j.Status)
			assert.Nil(t, j.NextAttemptAt)
			assert.Equal(t, t0.Add(2*time.Hour), j.UpdatedAt)
			require.NotNil(t, j.RecoveryReason)
			assert.Equal(t, "test", *j.RecoveryReason)
		})
	}
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	j := activeJourney("j1")
	require.NoError(t, j.Recover(t0, "ord-1", "order_completed"))

	for _, to := range []Status{StatusActive, StatusRecovered, StatusExpired, StatusCancelled} {
		err := j.Transition(to, t0.Add(time.Minute), TransitionInput{})
		assert.ErrorIs(t, err, ErrTerminal, "to %s", to)
	}
	assert.Equal(t, StatusRecovered, j.Status)
	require.NotNil(t, j.RecoveredOrderRef)
	assert.Equal(t, "ord-1", *j.RecoveredOrderRef)
}

func TestTransition_RejectsUnknownEdges(t *testing.T) {
	j := activeJourney("j1")
	assert.ErrorIs(t, j.Transition(StatusActive, t0, TransitionInput{}), ErrInvalidTransition)
	assert.ErrorIs(t, j.Transition(Status("paused"), t0, TransitionInput{}), ErrInvalidTransition)
	assert.Equal(t, StatusActive, j.Status)
}

func TestExpire_SetsReason(t *testing.T) {
	j := activeJourney("j1")
	require.NoError(t, j.Expire(t0))
	require.NotNil(t, j.RecoveryReason)
	assert.Equal(t, "recovery_window_elapsed", *j.RecoveryReason)
}

func TestClone_DoesNotSharePointers(t *testing.T) {
	j := activeJourney("j1")
	next := t0
	j.NextAttemptAt = &next

	c := j.Clone()
	*c.NextAttemptAt = t0.Add(time.Hour)
	assert.Equal(t, t0, *j.NextAttemptAt)
}

func TestAttemptFinalize(t *testing.T) {
	a := Attempt{AttemptNo: 1, Status: AttemptPending}
	require.NoError(t, a.Finalize(AttemptFailed, "smtp timeout"))
	assert.Equal(t, "smtp timeout", a.FailureReason)
	assert.Error(t, a.Finalize(AttemptSent, ""))

	b := Attempt{AttemptNo: 2, Status: AttemptPending}
	assert.Error(t, b.Finalize(AttemptPending, ""))
}

func TestIsReadyForListing(t *testing.T) {
	now := t0.Add(2 * time.Hour)

	fresh := activeJourney("j1")
	fresh.LastActivityAt = now.Add(-10 * time.Minute)
	assert.False(t, IsReadyForListing(fresh, 30, now))

	fresh.LastActivityAt = now.Add(-31 * time.Minute)
	assert.True(t, IsReadyForListing(fresh, 30, now))

	attempted := activeJourney("j2")
	attempted.LastActivityAt = now
	attempted.LastAttemptNo = 1
	assert.True(t, IsReadyForListing(attempted, 30, now))

	recovered := activeJourney("j3")
	recovered.Status = StatusRecovered
	recovered.LastActivityAt = now
	assert.True(t, IsReadyForListing(recovered, 30, now))

	unknown := activeJourney("j4")
	unknown.LastActivityAt = time.Time{}
	assert.False(t, IsReadyForListing(unknown, 30, now))
}

func TestIsReadyForListing_ThresholdFloorsAtOneMinute(t *testing.T) {
	j := activeJourney("j1")
	j.LastActivityAt = t0

	assert.False(t, IsReadyForListing(j, 0, t0.Add(30*time.Second)))
	assert.True(t, IsReadyForListing(j, 0, t0.Add(time.Minute)))
}
